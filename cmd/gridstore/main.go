package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DudLab/gridstore/internal/logger"
	"github.com/DudLab/gridstore/pkg/archive"
	"github.com/DudLab/gridstore/pkg/config"
	"github.com/DudLab/gridstore/pkg/metrics"
	"github.com/DudLab/gridstore/pkg/reclaim"
	"github.com/DudLab/gridstore/pkg/store"
	"github.com/DudLab/gridstore/pkg/store/hier"
	"github.com/DudLab/gridstore/pkg/store/zarr"
	"github.com/DudLab/gridstore/pkg/transcode"
)

const usage = `Usage: gridstore [flags] <command> [args]

Commands:
  info <store>             print the group/array tree of a store
  transcode <src> <dst>    copy a store between formats (dst is created)
  export <dir>             write <dir>.zip next to a directory store
  pack <dir>               export a directory store and replace it with the archive
  rm <path>                remove a tree with dependency-ordered reclamation

Store arguments are paths, optionally prefixed with a backend:
  zarr:/data/experiment    directory store (default for bare paths)
  hier:/data/experiment.db monolithic store
A path to a regular file is opened as a packed read-only archive.
`

func main() {
	configPath := flag.String("config", "", "Path to config file")
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	workers := flag.Int("workers", 0, "Reclamation workers (0 = one per CPU)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}
	if *workers != 0 {
		cfg.Reclaim.Workers = *workers
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutputPath(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex := config.CreateExecutor(&cfg.Reclaim)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ex.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Reclamation shutdown incomplete: %v", err)
		}
	}()

	if err := run(ctx, args, ex); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, ex *reclaim.Executor) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "info":
		if len(rest) != 1 {
			return fmt.Errorf("info: expected one store argument")
		}
		return runInfo(ctx, rest[0])
	case "transcode":
		if len(rest) != 2 {
			return fmt.Errorf("transcode: expected source and destination arguments")
		}
		return runTranscode(ctx, rest[0], rest[1])
	case "export":
		if len(rest) != 1 {
			return fmt.Errorf("export: expected one directory argument")
		}
		zipPath, err := archive.Export(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(zipPath)
		return nil
	case "pack":
		if len(rest) != 1 {
			return fmt.Errorf("pack: expected one directory argument")
		}
		return archive.Pack(ctx, rest[0], ex)
	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("rm: expected one path argument")
		}
		return runRemove(ctx, rest[0], ex)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openStoreArg opens a store named on the command line. A "hier:" or "zarr:"
// prefix selects the backend; bare paths default to the directory store.
func openStoreArg(arg string, create bool) (store.Store, error) {
	backend, path := "zarr", arg
	if i := strings.Index(arg, ":"); i > 0 {
		switch arg[:i] {
		case "zarr", "hier":
			backend, path = arg[:i], arg[i+1:]
		}
	}

	switch backend {
	case "hier":
		return hier.Open(path)
	default:
		return zarr.OpenPath(path, create)
	}
}

func runInfo(ctx context.Context, arg string) error {
	st, err := openStoreArg(arg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	root, err := st.Root(ctx)
	if err != nil {
		return err
	}

	return printTree(ctx, root, "/")
}

func printTree(ctx context.Context, g store.Group, path string) error {
	fmt.Printf("%s\n", path)

	names, err := g.Keys(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		child, err := g.Child(ctx, name)
		if err != nil {
			return err
		}

		childPath := path + name
		switch node := child.(type) {
		case store.Group:
			if err := printTree(ctx, node, childPath+"/"); err != nil {
				return err
			}
		case store.Array:
			fmt.Printf("%s  shape=%v dtype=%s chunks=%v\n",
				childPath, node.Shape(), node.Dtype(), node.Chunks())
		}
	}

	return nil
}

func runTranscode(ctx context.Context, srcArg, dstArg string) error {
	src, err := openStoreArg(srcArg, false)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	dst, err := openStoreArg(dstArg, true)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer dst.Close()

	return transcode.CopyStores(ctx, src, dst)
}

func runRemove(ctx context.Context, path string, ex *reclaim.Executor) error {
	h, err := reclaim.Quarantine(path, ex)
	if err != nil {
		return err
	}
	return h.Wait(ctx)
}
