package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ignite/subscriptions/internal/metrics"
	"github.com/ignite/subscriptions/internal/pkg/logger"
)

const (
	DefaultRestartBackoff    = time.Second
	DefaultMaxRestartBackoff = 30 * time.Second
)

// Task is a long-running unit of work supervised by a Supervisor. It should
// block until ctx is cancelled.
type Task func(ctx context.Context) error

// Supervisor keeps tasks running for the life of a context, restarting them
// with exponential backoff when they return or panic.
type Supervisor struct {
	backoff    time.Duration
	maxBackoff time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewSupervisor creates a supervisor. Non-positive durations use defaults.
func NewSupervisor(backoff, maxBackoff time.Duration, log *logger.Logger, m *metrics.Metrics) *Supervisor {
	if backoff <= 0 {
		backoff = DefaultRestartBackoff
	}
	if maxBackoff < backoff {
		maxBackoff = DefaultMaxRestartBackoff
		if maxBackoff < backoff {
			maxBackoff = backoff
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{backoff: backoff, maxBackoff: maxBackoff, log: log, metrics: m}
}

// Run runs task until ctx is cancelled. A run that lasted longer than the
// maximum backoff resets the delay.
func (s *Supervisor) Run(ctx context.Context, name string, task Task) {
	delay := s.backoff
	for {
		started := time.Now()
		err := runGuarded(ctx, task)
		if ctx.Err() != nil {
			s.log.Info("supervised task stopped", "task", name)
			return
		}
		if err == nil {
			err = errors.New("task returned before shutdown")
		}
		if time.Since(started) > s.maxBackoff {
			delay = s.backoff
		}

		s.metrics.IncrementSupervisorRestart(name)
		s.log.Error("supervised task crashed, restarting",
			"task", name,
			"error", err.Error(),
			"backoff", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("supervised task stopped", "task", name)
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > s.maxBackoff {
			delay = s.maxBackoff
		}
	}
}

func runGuarded(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return task(ctx)
}
