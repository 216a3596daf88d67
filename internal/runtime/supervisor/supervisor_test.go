package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstError(t *testing.T) {
	s := New(context.Background())
	s.Go("a", func(ctx context.Context) error { return errors.New("boom") })
	s.Go("b", func(ctx context.Context) error { return context.Canceled })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, "a: boom", err.Error())
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("panicky", func(ctx context.Context) { panic("oops") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: oops")

	snap := s.Snapshot()
	require.Len(t, snap.Tasks, 2)
	assert.Equal(t, "panicky", snap.Tasks[0].Name)
	assert.Equal(t, uint64(1), snap.Tasks[0].Panics)
}

func TestGoRestart(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(3), runs.Load())

	var flaky TaskSnapshot
	for _, ts := range s.Snapshot().Tasks {
		if ts.Name == "flaky" {
			flaky = ts
		}
	}
	assert.Equal(t, uint64(2), flaky.Restarts)
	assert.Equal(t, "flaky: transient", flaky.LastErr)
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("nope")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, int32(3), runs.Load())
}

func TestStopCancelsTasks(t *testing.T) {
	s := New(context.Background())
	s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, int64(0), s.Snapshot().Active)
}
