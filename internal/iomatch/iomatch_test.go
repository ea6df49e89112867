package iomatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pake/internal/pakeerr"
)

func touch(t *testing.T, path string, when time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, when, when))
}

func TestClassify_SymmetricCompile(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now().Truncate(time.Second)
	touch(t, filepath.Join(dir, "a.c"), t0)
	touch(t, filepath.Join(dir, "b.c"), t0)
	touch(t, filepath.Join(dir, "a.o"), t0.Add(-time.Second))
	// b.o intentionally omitted.

	res, err := Classify(dir, "bar", []string{"a.c", "b.c"}, []string{"a.o", "b.o"})
	require.NoError(t, err)
	assert.True(t, res.Outdated)
	assert.Equal(t, [][2]string{{"a.c", "a.o"}, {"b.c", "b.o"}}, res.OutdatedPairs)
}

func TestClassify_Phony(t *testing.T) {
	dir := t.TempDir()
	res, err := Classify(dir, "clean", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Outdated)
}

func TestClassify_MissingInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	_, err := Classify(dir, "build", []string{"missing.c"}, nil)
	require.Error(t, err)
	var missing *pakeerr.MissingInput
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "build", missing.Task)
}

func TestClassify_AsymmetricOutdatedWhenAnyOutputMissing(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now().Truncate(time.Second)
	touch(t, filepath.Join(dir, "a.c"), t0)
	touch(t, filepath.Join(dir, "b.c"), t0)
	touch(t, filepath.Join(dir, "out1"), t0.Add(time.Hour))
	touch(t, filepath.Join(dir, "out3"), t0.Add(time.Hour))
	// out2 missing.

	res, err := Classify(dir, "link", []string{"a.c", "b.c"}, []string{"out1", "out2", "out3"})
	require.NoError(t, err)
	assert.True(t, res.Outdated)
	assert.ElementsMatch(t, []string{"a.c", "b.c"}, res.OutdatedInputs)
}

func TestClassify_AsymmetricFreshWhenAllOutputsNewer(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now().Truncate(time.Second)
	touch(t, filepath.Join(dir, "a.c"), t0)
	touch(t, filepath.Join(dir, "out1"), t0.Add(time.Hour))
	touch(t, filepath.Join(dir, "out2"), t0.Add(time.Hour))

	res, err := Classify(dir, "link", []string{"a.c"}, []string{"out1", "out2"})
	require.NoError(t, err)
	assert.False(t, res.Outdated)
}

func TestClassify_DerivedOutputSubstitutesStem(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Now().Truncate(time.Second)
	touch(t, filepath.Join(dir, "a.c"), t0)
	touch(t, filepath.Join(dir, "b.c"), t0)

	res, err := Classify(dir, "compile", []string{"a.c", "b.c"}, []string{"%.o"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.o", "b.o"}, res.ConcreteOutputs)
}

func TestClassify_DirectoryUsesOwnMTime(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "outdir")
	require.NoError(t, os.Mkdir(sub, 0o755))
	nested := filepath.Join(sub, "nested.txt")
	t0 := time.Now().Truncate(time.Second)
	touch(t, nested, t0.Add(time.Hour)) // nested file is newer than the dir itself
	touch(t, filepath.Join(dir, "in.txt"), t0)
	require.NoError(t, os.Chtimes(sub, t0.Add(-time.Minute), t0.Add(-time.Minute)))

	res, err := Classify(dir, "build", []string{"in.txt"}, []string{"outdir"})
	require.NoError(t, err)
	// Directory's own mtime is older than the input, so the pair is outdated
	// even though a file inside the directory is newer — recursion is never
	// performed.
	assert.True(t, res.Outdated)
}
