// Package archive exports a directory store tree as a single-file
// archive, and packs a live tree in place.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DudLab/gridstore/internal/logger"
	"github.com/DudLab/gridstore/pkg/reclaim"
)

// Export writes every file under dir into "<dir>.zip" and returns the
// archive path. Members are stored uncompressed in lexicographically
// sorted relative-path order, so repeated exports of an unchanged tree
// are byte-for-byte identical. An existing archive is replaced.
//
// Quarantine directories are excluded, and members swept by background
// reclamation between the walk and the copy are silently dropped, so an
// export concurrent with pending reclamation sees only live data.
func Export(ctx context.Context, dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	zipName := abs + ".zip"

	if err := reclaim.Remove(zipName); err != nil {
		return "", err
	}

	var members []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != abs {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != abs && strings.HasPrefix(d.Name(), reclaim.QuarantinePrefix) {
				return fs.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(abs, path)
		if rerr != nil {
			return rerr
		}
		members = append(members, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(members)

	out, err := os.Create(zipName)
	if err != nil {
		return "", err
	}
	defer out.Close()

	written := 0
	zw := zip.NewWriter(out)
	for _, rel := range members {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return "", err
		}
		if err := addMember(zw, abs, rel); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			zw.Close()
			return "", fmt.Errorf("archiving %q: %w", rel, err)
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	logger.Info("Exported %s: %d members", zipName, written)
	return zipName, nil
}

func addMember(zw *zip.Writer, root, rel string) error {
	src, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = rel
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// Pack replaces the live tree at dir with its exported archive: the tree
// is exported, renamed aside with a leading dot, the archive moved into
// the tree's place, and the superseded tree reclaimed. With a nil
// executor reclamation is synchronous.
func Pack(ctx context.Context, dir string, ex *reclaim.Executor) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	zipName, err := Export(ctx, abs)
	if err != nil {
		return err
	}

	aside := filepath.Join(filepath.Dir(abs), "."+filepath.Base(abs))
	if err := os.Rename(abs, aside); err != nil {
		return fmt.Errorf("setting aside %q: %w", abs, err)
	}
	if err := os.Rename(zipName, abs); err != nil {
		return fmt.Errorf("installing archive as %q: %w", abs, err)
	}

	if ex == nil {
		return reclaim.Remove(aside)
	}
	if _, err := reclaim.Quarantine(aside, ex); err != nil {
		return err
	}
	return nil
}
