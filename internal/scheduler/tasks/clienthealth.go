// Package tasks contains the scheduled maintenance tasks.
package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

// ClientHealthTask periodically probes the configured download client so
// connectivity problems surface in the logs before a grab needs it.
type ClientHealthTask struct {
	client types.Client
	logger zerolog.Logger
}

// NewClientHealthTask creates a download client health check task.
func NewClientHealthTask(client types.Client, logger zerolog.Logger) *ClientHealthTask {
	return &ClientHealthTask{
		client: client,
		logger: logger.With().Str("task", "client-health").Logger(),
	}
}

// Run executes the download client health check.
func (t *ClientHealthTask) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := t.client.Connect(ctx); err != nil {
		t.logger.Warn().
			Err(err).
			Str("client", string(t.client.Type())).
			Msg("Download client unreachable")
		return err
	}

	t.logger.Debug().
		Str("client", string(t.client.Type())).
		Msg("Download client healthy")
	return nil
}
