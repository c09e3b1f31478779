// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/fingerd/lib/finger"
)

// runPeriodicTask runs task every time its schedule fires until ctx is
// cancelled or the task returns finger.ErrStop. Other task errors are
// logged and the loop goes on.
func (s *Server) runPeriodicTask(ctx context.Context, task finger.PeriodicTask) error {
	logger := s.logger.With("task", task.Name, "schedule", task.Schedule.String())
	logger.Debug("periodic task scheduled")

	for {
		now := s.clock.Now()
		next, err := task.Schedule.Next(now)
		if err != nil {
			return fmt.Errorf("periodic task %s: %w", task.Name, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(next.Sub(now)):
		}

		err = runTaskOnce(ctx, task)
		switch {
		case errors.Is(err, finger.ErrStop):
			s.metrics.taskRun(task.Name, "stop")
			logger.Info("periodic task requested stop")
			return finger.ErrStop
		case err != nil:
			s.metrics.taskRun(task.Name, "error")
			logger.Error("periodic task failed", "error", err)
		default:
			s.metrics.taskRun(task.Name, "ok")
		}
	}
}

// runTaskOnce runs one iteration of task, turning a panic into an
// error.
func runTaskOnce(ctx context.Context, task finger.PeriodicTask) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return task.Run(ctx)
}
