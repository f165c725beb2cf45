package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// ExpiredKeyDeleter removes every expired access key.
type ExpiredKeyDeleter interface {
	DeleteExpiredAccessKeys(ctx context.Context) ([]model.AccessKey, error)
}

// Sweeper periodically deletes expired access keys so they disappear even if
// nobody reads them.
type Sweeper struct {
	deleter  ExpiredKeyDeleter
	interval time.Duration
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(deleter ExpiredKeyDeleter, interval time.Duration) *Sweeper {
	return &Sweeper{
		deleter:  deleter,
		interval: interval,
	}
}

// Start runs an immediate sweep, then one per interval. Start blocks until
// the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce deletes the currently expired keys and returns how many were
// removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	deleted, err := s.deleter.DeleteExpiredAccessKeys(ctx)
	if err != nil {
		return len(deleted), err
	}

	if len(deleted) > 0 {
		slog.Info("sweep complete", "deleted", len(deleted), "duration", time.Since(start))
	} else {
		slog.Debug("sweep complete, nothing expired", "duration", time.Since(start))
	}
	return len(deleted), nil
}
