package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"filterq/internal/logging"
)

// cleanupStack tears resources down in reverse acquisition order: the HTTP
// server stops before the filter service's collaborators, the database
// closes before the telemetry pipelines that instrument it, and the logger
// provider flushes last.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run executes every teardown step even when earlier ones fail, and
// returns the failures joined.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		start := time.Now()
		if err := item.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
			logger.Warn("teardown step failed",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Debug("teardown step done",
			slog.String("component", item.name),
			slog.Duration("took", time.Since(start)),
		)
	}
	return errors.Join(errs...)
}

// Shutdown releases every acquired resource once; later calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		err = cleanup.run(ctx, a.logger)
	})
	return err
}
