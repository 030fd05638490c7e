package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/config"
)

type fakePruner struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakePruner) Prune(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func newScheduler(now time.Time, p Pruner) *Scheduler {
	cfg := config.DefaultConfig()
	cfg.Journal.CleanupTime = "04:30"
	cfg.Journal.RetentionDays = 7
	s := NewScheduler(cfg, p)
	s.now = func() time.Time { return now }
	return s
}

func TestNextCleanupTime(t *testing.T) {
	early := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 1, 4, 30, 0, 0, time.UTC), newScheduler(early, nil).nextCleanupTime())

	late := time.Date(2026, 5, 1, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 2, 4, 30, 0, 0, time.UTC), newScheduler(late, nil).nextCleanupTime())
}

func TestRunCleanerUsesRetention(t *testing.T) {
	now := time.Date(2026, 5, 10, 4, 30, 0, 0, time.UTC)
	p := &fakePruner{n: 12}

	n, err := newScheduler(now, p).RunCleaner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, now.AddDate(0, 0, -7), p.before)
}

func TestRunCleanerWrapsError(t *testing.T) {
	p := &fakePruner{err: errors.New("database is locked")}
	_, err := newScheduler(time.Now(), p).RunCleaner(context.Background())
	assert.ErrorContains(t, err, "failed to prune journal")
}
