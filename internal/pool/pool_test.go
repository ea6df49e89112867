package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_SynchronousWhenN1(t *testing.T) {
	p := New(1)
	var ran atomic.Bool
	h := p.Submit(context.Background(), func() (any, error) {
		ran.Store(true)
		return 7, nil
	})
	assert.True(t, ran.Load(), "unit should have already run before Submit returned")
	assert.True(t, h.Done())
	v, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestSubmit_PropagatesError(t *testing.T) {
	p := New(4)
	boom := errors.New("boom")
	h := p.Submit(context.Background(), func() (any, error) { return nil, boom })
	_, err := h.Wait()
	assert.ErrorIs(t, err, boom)
}

func TestScope_FirstSubmittedErrorWins(t *testing.T) {
	p := New(4)
	scope := p.Sub(context.Background())
	errA := errors.New("a")
	errB := errors.New("b")

	var ranC atomic.Bool
	h1 := scope.Go(func() (any, error) { return nil, errA })
	h2 := scope.Go(func() (any, error) { return nil, errB })
	h3 := scope.Go(func() (any, error) { ranC.Store(true); return nil, nil })

	err := scope.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)

	// All submitted units complete even though one failed first.
	assert.True(t, h1.Done())
	assert.True(t, h2.Done())
	assert.True(t, h3.Done())
	assert.True(t, ranC.Load())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxSeen atomic.Int32
	scope := p.Sub(context.Background())
	for i := 0; i < 8; i++ {
		scope.Go(func() (any, error) {
			cur := inFlight.Add(1)
			for {
				seen := maxSeen.Load()
				if cur <= seen || maxSeen.CompareAndSwap(seen, cur) {
					break
				}
			}
			inFlight.Add(-1)
			return nil, nil
		})
	}
	require.NoError(t, scope.Wait())
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}
