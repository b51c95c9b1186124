// Package background runs fire-and-forget tasks detached from the request
// that scheduled them.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sessions/internal/lib/logger/sl"
	"sessions/internal/metrics"
)

type Task func(ctx context.Context) error

type Runner struct {
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// New returns a runner giving every task its own context bounded by timeout.
func New(log *slog.Logger, timeout time.Duration) *Runner {
	return &Runner{
		log:     log,
		timeout: timeout,
	}
}

// Go schedules task and returns immediately. Task errors and panics are
// logged and never reach the caller.
func (r *Runner) Go(name string, task Task) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		log := r.log.With(slog.String("task", name))

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		err := run(ctx, task)
		if err != nil {
			log.Warn("background task failed", sl.Err(err))
		} else {
			log.Debug("background task finished")
		}

		metrics.BackgroundTasksTotal.WithLabelValues(name, metrics.Result(err)).Inc()
	}()
}

func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	return task(ctx)
}

// Wait blocks until every scheduled task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
