// Package scheduler runs the daily journal retention task.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/db"
)

// Pruner deletes journal rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg     *config.Config
	journal Pruner
	now     func() time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, journal Pruner) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		journal: journal,
		now:     time.Now,
	}
}

// Start runs the journal cleaner at the configured time every day until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	for {
		nextRun := s.nextCleanupTime()
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("journal cleaner scheduled")

		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-time.After(sleepDuration):
			if _, err := s.RunCleaner(ctx); err != nil {
				log.Warn().Err(err).Msg("journal cleaner failed")
			}
		}
	}
}

// RunCleaner deletes journal rows past the retention period.
func (s *Scheduler) RunCleaner(ctx context.Context) (int64, error) {
	days := s.cfg.GetJournal().RetentionDays
	if days < 1 {
		days = 1
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	log.Info().
		Int("retention_days", days).
		Time("cutoff", cutoff).
		Msg("running journal cleaner")

	n, err := s.journal.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	log.Info().Int64("deleted_rows", n).Msg("journal cleaner completed")
	return n, nil
}

// nextCleanupTime returns the next occurrence of the configured HH:MM.
func (s *Scheduler) nextCleanupTime() time.Time {
	parts := strings.Split(s.cfg.GetJournal().CleanupTime, ":")

	hour, minute := 4, 0
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

var _ Pruner = (*db.Journal)(nil)
