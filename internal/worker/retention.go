package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger deletes closed polls (and, by cascade, their vote records) older
// than a cutoff; implemented by the poll repository.
type Purger interface {
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper periodically purges closed polls past the retention window.
type RetentionSweeper struct {
	purger   Purger
	days     int
	interval time.Duration
	logger   *zap.Logger
}

// NewRetentionSweeper creates a sweeper. days <= 0 disables it.
func NewRetentionSweeper(purger Purger, days, sweepMinutes int, logger *zap.Logger) *RetentionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sweepMinutes <= 0 {
		sweepMinutes = 60
	}
	return &RetentionSweeper{
		purger:   purger,
		days:     days,
		interval: time.Duration(sweepMinutes) * time.Minute,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until ctx is done.
func (s *RetentionSweeper) Run(ctx context.Context) {
	if s.days <= 0 {
		s.logger.Info("retention sweep disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.days)
	n, err := s.purger.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("retention sweep purged polls", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
}
