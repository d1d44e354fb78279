package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/subscriptions/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSupervisor(s *Supervisor, ctx context.Context, task Task) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, "delivery", task)
	}()
	return done
}

func TestSupervisor_RestartsOnError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := NewSupervisor(time.Millisecond, 5*time.Millisecond, nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := runSupervisor(s, ctx, func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("redis connection lost")
		}
		<-ctx.Done()
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SupervisorRestarts.WithLabelValues("delivery")))
}

func TestSupervisor_RestartsOnPanic(t *testing.T) {
	s := NewSupervisor(time.Millisecond, time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := runSupervisor(s, ctx, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("nil map write")
		}
		<-ctx.Done()
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestSupervisor_RestartsWhenTaskReturnsEarly(t *testing.T) {
	s := NewSupervisor(time.Millisecond, time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := runSupervisor(s, ctx, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestSupervisor_StopsDuringBackoff(t *testing.T) {
	s := NewSupervisor(time.Hour, time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := runSupervisor(s, ctx, func(ctx context.Context) error {
		close(started)
		return errors.New("boom")
	})
	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop during backoff")
	}
}

func TestSupervisor_ReturnsOnCancel(t *testing.T) {
	s := NewSupervisor(0, 0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := runSupervisor(s, ctx, func(ctx context.Context) error {
		runs.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()
	<-done
	assert.Equal(t, int32(1), runs.Load())
}

func TestNewSupervisor_Defaults(t *testing.T) {
	s := NewSupervisor(0, 0, nil, nil)
	assert.Equal(t, DefaultRestartBackoff, s.backoff)
	assert.Equal(t, DefaultMaxRestartBackoff, s.maxBackoff)

	s = NewSupervisor(time.Minute, time.Second, nil, nil)
	assert.Equal(t, time.Minute, s.maxBackoff)
}
