package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/stats"
)

// ActivityCleanupTask trims the persisted activity log back to its ring
// capacity. Inserts trim opportunistically, this task catches anything
// left behind by failed trims.
type ActivityCleanupTask struct {
	stats  *stats.Service
	logger zerolog.Logger
}

// NewActivityCleanupTask creates an activity cleanup task.
func NewActivityCleanupTask(statsSvc *stats.Service, logger zerolog.Logger) *ActivityCleanupTask {
	return &ActivityCleanupTask{
		stats:  statsSvc,
		logger: logger.With().Str("task", "activity-cleanup").Logger(),
	}
}

// Run trims the activity log.
func (t *ActivityCleanupTask) Run(ctx context.Context) error {
	if err := t.stats.TrimActivity(ctx); err != nil {
		t.logger.Error().Err(err).Msg("Failed to trim activity log")
		return err
	}
	return nil
}
