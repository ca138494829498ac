// Package reclaim provides asynchronous, dependency-ordered removal of
// storage trees, and the atomic-overwrite proxy that lets a directory
// store key be replaced immediately while the superseded data is
// reclaimed in the background.
package reclaim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrInvalidKey is returned when deletion is requested for a store
	// key that holds no data.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidPath is returned when a path is neither a file, a
	// directory, nor absent.
	ErrInvalidPath = errors.New("invalid path")

	// ErrDeletionFailed wraps any I/O failure during task execution other
	// than "already absent". It is fatal for the failing task and for
	// every task depending on it.
	ErrDeletionFailed = errors.New("deletion failed")
)

// TaskKind discriminates removal tasks.
type TaskKind int

const (
	// TaskNoop is an already-satisfied task for an absent path.
	TaskNoop TaskKind = iota
	// TaskFile removes a single file.
	TaskFile
	// TaskDir removes a directory after all of its children.
	TaskDir
)

func (k TaskKind) String() string {
	switch k {
	case TaskNoop:
		return "noop"
	case TaskFile:
		return "file"
	case TaskDir:
		return "dir"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Task is one node of a removal dependency DAG. A directory task depends
// on the tasks for all of its immediate children, so transitively every
// descendant completes before the directory itself is removed.
type Task struct {
	Path string
	Kind TaskKind
	Deps []*Task
}

// Count returns the total number of tasks in the graph rooted at t.
func (t *Task) Count() int {
	n := 1
	for _, d := range t.Deps {
		n += d.Count()
	}
	return n
}

// Build walks the tree at root bottom-up and produces its removal DAG.
//
// An absent root yields an already-satisfied no-op task; a file yields a
// leaf task; a directory yields a task depending on all of its immediate
// children. The walk is iterative with an explicit work list, so graph
// construction does not recurse even on very deep trees.
func Build(root string) (*Task, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(abs)
	if os.IsNotExist(err) {
		return &Task{Path: abs, Kind: TaskNoop}, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return &Task{Path: abs, Kind: TaskFile}, nil
	}

	type dirNode struct {
		path    string
		files   []string
		subdirs []string
	}

	// Phase one: discover directories, parents before children.
	var dirs []dirNode
	work := []string{abs}
	for len(work) > 0 {
		path := work[len(work)-1]
		work = work[:len(work)-1]

		entries, err := os.ReadDir(path)
		if err != nil {
			// A subtree may vanish while we walk; its task becomes a
			// plain directory removal with no dependencies.
			if os.IsNotExist(err) {
				dirs = append(dirs, dirNode{path: path})
				continue
			}
			return nil, err
		}

		node := dirNode{path: path}
		for _, e := range entries {
			child := filepath.Join(path, e.Name())
			if e.IsDir() {
				node.subdirs = append(node.subdirs, child)
				work = append(work, child)
			} else {
				node.files = append(node.files, child)
			}
		}
		dirs = append(dirs, node)
	}

	// Phase two: build tasks bottom-up. Walking dirs in reverse
	// guarantees every subdirectory's task exists before its parent's.
	built := make(map[string]*Task, len(dirs))
	for i := len(dirs) - 1; i >= 0; i-- {
		node := dirs[i]
		task := &Task{Path: node.path, Kind: TaskDir}
		for _, f := range node.files {
			task.Deps = append(task.Deps, &Task{Path: f, Kind: TaskFile})
		}
		for _, d := range node.subdirs {
			task.Deps = append(task.Deps, built[d])
		}
		built[node.path] = task
	}
	return built[abs], nil
}

// Remove deletes a path synchronously and idempotently: files are
// unlinked, directories removed recursively, and an absent path is
// success.
func Remove(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.IsDir() {
		return os.RemoveAll(path)
	}
	if info.Mode().IsRegular() || info.Mode()&os.ModeSymlink != 0 {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unable to remove %q: %w", path, ErrInvalidPath)
}
