// Package scheduler runs the settlement service's background work:
//  1. archiveLoop – copies new settlement records to object storage on a
//     fixed interval, with one instance at a time holding the archive lock.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dependencies
// ──────────────────────────────────────────────────────────────────────────────

// Archiver is the slice of SettlementService the scheduler drives.
type Archiver interface {
	ArchivePending(ctx context.Context, limit int) (int, error)
}

// Locker hands out distributed locks. Acquire returns domain.ErrLockHeld when
// another instance holds key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// archiveLockKey is shared by every instance of the service.
const archiveLockKey = "settlement-archive"

// maxBatchesPerTick bounds how long one tick may hold the lock.
const maxBatchesPerTick = 10

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler owns the background loops. Call Run(ctx) once from main(); cancel
// the context to shut it down.
type Scheduler struct {
	archiver Archiver
	locker   Locker // nil: single instance, no lock
	cfg      config.ArchiveConfig
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(archiver Archiver, locker Locker, cfg config.ArchiveConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		archiver: archiver,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "archive_interval", s.cfg.Interval, "batch", s.cfg.BatchSize)
	s.archiveLoop(ctx)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// archiveLoop
// ──────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) archiveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("archiveLoop: shutting down")
			return
		case <-ticker.C:
			s.archiveTick(ctx)
		}
	}
}

// archiveTick is the inner body of archiveLoop, extracted so that the
// defer/recover catches panics per tick.
func (s *Scheduler) archiveTick(ctx context.Context) {
	defer s.recoverAndLog("archiveLoop")

	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, archiveLockKey, s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Debug("archiveLoop: lock held by another instance")
			return
		}
		if err != nil {
			s.logger.Warn("archiveLoop: lock unavailable", "err", err)
			return
		}
		defer unlock()
	}

	total := 0
	for i := 0; i < maxBatchesPerTick; i++ {
		n, err := s.archiver.ArchivePending(ctx, s.cfg.BatchSize)
		total += n
		if err != nil {
			s.logger.Error("archiveLoop: ArchivePending", "archived", total, "err", err)
			return
		}
		if n < s.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info("settlement records archived", "count", total)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each tick to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
