// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package janitor periodically purges expired challenges and recovery keys.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 5 * time.Minute

// CleanupFunc removes expired records and reports how many it removed.
// (*webauthn.Service).Cleanup and (*recovery.Service).Cleanup satisfy it.
type CleanupFunc func(ctx context.Context) (int, error)

// Task is a named CleanupFunc.
type Task struct {
	Name string
	Run  CleanupFunc
}

// Janitor runs its tasks at a fixed interval until stopped.
type Janitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
	tasks    []Task
	logger   *slog.Logger
}

// New creates a Janitor bound to ctx. Tasks with a nil Run are skipped.
//
// Example:
//
//	j := janitor.New(ctx, time.Minute, logger,
//	    janitor.Task{Name: "challenges", Run: webauthnSvc.Cleanup},
//	    janitor.Task{Name: "recovery_keys", Run: recoverySvc.Cleanup},
//	)
//	go j.Start()
//	defer j.Stop()
func New(ctx context.Context, interval time.Duration, logger *slog.Logger, tasks ...Task) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	jctx, cancel := context.WithCancel(ctx)
	j := &Janitor{
		ctx:      jctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		interval: interval,
		logger:   logger.With("component", "janitor"),
	}
	for _, t := range tasks {
		if t.Run != nil {
			j.tasks = append(j.tasks, t)
		}
	}
	return j
}

// Interval returns the sweep interval.
func (j *Janitor) Interval() time.Duration {
	return j.interval
}

// Start sweeps once immediately and then on every tick. It blocks until
// Stop is called or the parent context is cancelled.
func (j *Janitor) Start() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()
	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// Stop cancels the loop and waits for an in-flight sweep to return.
// It must only be called after Start has been launched.
func (j *Janitor) Stop() {
	j.cancel()
	<-j.done
}

func (j *Janitor) sweep() {
	if _, err := j.RunOnce(j.ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logger.Error("cleanup sweep failed", slog.Any("error", err))
	}
}

// RunOnce runs every task once and returns the number of records each
// removed, keyed by task name. A failing task does not stop the others;
// their errors are joined.
func (j *Janitor) RunOnce(ctx context.Context) (map[string]int, error) {
	removed := make(map[string]int, len(j.tasks))
	var errs []error
	for _, t := range j.tasks {
		n, err := t.Run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		removed[t.Name] = n
		if n > 0 {
			j.logger.DebugContext(ctx, "removed expired records",
				slog.String("task", t.Name), slog.Int("count", n))
		}
	}
	return removed, errors.Join(errs...)
}
