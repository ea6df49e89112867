package subprocess

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pake/internal/pakeerr"
)

type testSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *testSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}
func (s *testSink) Lock()   { s.mu.Lock() }
func (s *testSink) Unlock() { s.mu.Unlock() }
func (s *testSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestCall_Success(t *testing.T) {
	sink := &testSink{}
	r := New("build", sink)
	res, err := r.Call(context.Background(), []string{"true"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestCall_FailureCollected(t *testing.T) {
	sink := &testSink{}
	r := New("build", sink)
	_, err := r.Call(context.Background(), []string{"false"}, Options{CollectOutput: true})
	require.Error(t, err)

	var failure *pakeerr.SubprocessFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "build", failure.Task)
	assert.Equal(t, []string{"false"}, failure.Command)
	assert.Equal(t, 1, failure.ExitCode)
	assert.Empty(t, failure.Output)
}

func TestCall_IgnoreErrorsReturnsCode(t *testing.T) {
	sink := &testSink{}
	r := New("build", sink)
	res, err := r.Call(context.Background(), []string{"false"}, Options{IgnoreErrors: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestCheckOutput_NeverStreamsToSink(t *testing.T) {
	sink := &testSink{}
	r := New("build", sink)
	out, err := r.CheckOutput(context.Background(), []string{"echo", "hello"}, Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
	assert.Empty(t, sink.String())
}
