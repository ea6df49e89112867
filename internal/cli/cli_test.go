package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefinesAndConcurrency(t *testing.T) {
	cfg, shouldExit, err := Parse([]string{"-D", "DEBUG=true", "-D", "NAME=foo", "-j", "4", "build"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, shouldExit)
	assert.Equal(t, []string{"DEBUG=true", "NAME=foo"}, cfg.Defines)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{"build"}, cfg.Tasks)
}

func TestParse_SyncOutputFlag(t *testing.T) {
	cfg, _, err := Parse([]string{"-sync-output", "0"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.NotNil(t, cfg.SyncOutput)
	assert.False(t, *cfg.SyncOutput)
}

func TestParse_SyncOutputFallsBackToEnv(t *testing.T) {
	t.Setenv("PAKE_SYNC_OUTPUT", "true")
	cfg, _, err := Parse(nil, &bytes.Buffer{})
	require.NoError(t, err)
	require.NotNil(t, cfg.SyncOutput)
	assert.True(t, *cfg.SyncOutput)
}

func TestParse_RejectsZeroConcurrency(t *testing.T) {
	_, _, err := Parse([]string{"-j", "0"}, &bytes.Buffer{})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParse_RejectsConflictingListFlags(t *testing.T) {
	_, _, err := Parse([]string{"-t", "-ti"}, &bytes.Buffer{})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParse_HelpRequestsCleanExit(t *testing.T) {
	_, shouldExit, err := Parse([]string{"-h"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, shouldExit)
}

func TestParse_RepeatableFilesFlag(t *testing.T) {
	cfg, _, err := Parse([]string{"-f", "a.go", "-f", "b.go"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, cfg.Files)
}

func TestStripFileFlags_RemovesEachOccurrenceAndValue(t *testing.T) {
	got := StripFileFlags([]string{"-f", "a.bin", "-j", "4", "-f=b.bin", "build", "-f", "c.bin"})
	assert.Equal(t, []string{"-j", "4", "build"}, got)
}
