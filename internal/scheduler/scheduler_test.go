package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bitdb/internal/resource"
)

func TestScheduler_RunsTasks(t *testing.T) {
	s := New(Config{Workers: 2})
	defer s.Close()

	var ran atomic.Int32
	require.NoError(t, s.Submit("a", func(context.Context) { ran.Add(1) }))
	s.Wait()
	require.NoError(t, s.Submit("b", func(context.Context) { ran.Add(1) }))
	s.Wait()

	assert.Equal(t, int32(2), ran.Load())
	st := s.Stats()
	assert.Equal(t, uint64(2), st.Submitted)
	assert.Equal(t, uint64(2), st.Completed)
	assert.Zero(t, st.Running)
}

func TestScheduler_RejectsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := New(Config{Workers: 1, Logger: logger})
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Submit("blocker", func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	err := s.Submit("eden", func(context.Context) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejectedScheduling)

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "eden", rejected.Task)
	assert.Contains(t, buf.String(), "background task rejected")
	assert.Equal(t, uint64(1), s.Stats().Rejected)

	close(release)
	s.Wait()
	require.NoError(t, s.Submit("eden", func(context.Context) {}))
}

func TestScheduler_SharesControllerSlots(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 1})
	s := New(Config{Controller: rc})
	defer s.Close()

	require.True(t, rc.TryAcquireBackground())
	assert.ErrorIs(t, s.Submit("x", func(context.Context) {}), ErrRejectedScheduling)
	rc.ReleaseBackground()
	assert.NoError(t, s.Submit("x", func(context.Context) {}))
}

func TestScheduler_NoTaskStartsAfterClose(t *testing.T) {
	for range 50 {
		s := New(Config{Workers: 4})

		var closed, late atomic.Bool
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					err := s.Submit("x", func(context.Context) {
						if closed.Load() {
							late.Store(true)
						}
					})
					if errors.Is(err, ErrClosed) {
						return
					}
				}
			}()
		}
		require.NoError(t, s.Close())
		closed.Store(true)
		wg.Wait()

		assert.False(t, late.Load())
		assert.ErrorIs(t, s.Submit("x", func(context.Context) {}), ErrClosed)
		assert.Zero(t, s.Stats().Running)
	}
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	require.NoError(t, s.Submit("boom", func(context.Context) { panic("boom") }))
	s.Wait()
	assert.Equal(t, uint64(1), s.Stats().Panicked)

	// The slot was released.
	require.NoError(t, s.Submit("ok", func(context.Context) {}))
}

func TestScheduler_CloseCancelsTasks(t *testing.T) {
	s := New(Config{})

	done := make(chan struct{})
	require.NoError(t, s.Submit("wait", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}))

	require.NoError(t, s.Close())
	<-done
	assert.ErrorIs(t, s.Submit("late", func(context.Context) {}), ErrClosed)
	assert.NoError(t, s.Close())
}
