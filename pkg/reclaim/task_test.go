package reclaim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTree creates dir/{a,b,sub/{c,nested/d}} and returns dir.
func makeTree(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "nested"), 0o755))
	for _, f := range []string{"a", "b", "sub/c", "sub/nested/d"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(f), 0o644))
	}
	return dir
}

func TestBuild_AbsentPath(t *testing.T) {
	task, err := Build(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)

	assert.Equal(t, TaskNoop, task.Kind)
	assert.Empty(t, task.Deps)
	assert.Equal(t, 1, task.Count())
}

func TestBuild_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	task, err := Build(path)
	require.NoError(t, err)

	assert.Equal(t, TaskFile, task.Kind)
	assert.Empty(t, task.Deps)
}

func TestBuild_Tree(t *testing.T) {
	dir := makeTree(t)

	task, err := Build(dir)
	require.NoError(t, err)

	assert.Equal(t, TaskDir, task.Kind)
	// 3 dirs + 4 files
	assert.Equal(t, 7, task.Count())

	// The root depends on its immediate children only
	names := map[string]TaskKind{}
	for _, dep := range task.Deps {
		names[filepath.Base(dep.Path)] = dep.Kind
	}
	assert.Equal(t, map[string]TaskKind{
		"a":   TaskFile,
		"b":   TaskFile,
		"sub": TaskDir,
	}, names)

	// Directory tasks nest all the way down
	for _, dep := range task.Deps {
		if dep.Kind == TaskDir {
			assert.Equal(t, 4, dep.Count())
		}
	}
}

func TestRemove_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, Remove(path))
	_, err := os.Lstat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRemove_Tree(t *testing.T) {
	dir := makeTree(t)

	require.NoError(t, Remove(dir))
	_, err := os.Lstat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRemove_AbsentIsSuccess(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "nope")))
}

func TestTaskKind_String(t *testing.T) {
	assert.Equal(t, "noop", TaskNoop.String())
	assert.Equal(t, "file", TaskFile.String())
	assert.Equal(t, "dir", TaskDir.String())
}
