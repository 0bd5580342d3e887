package filter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/downloader/types"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// Poller retries the download client until the torrent's manifest becomes
// observable or the attempts are exhausted. Exhaustion is a normal result,
// not an error: the caller proceeds without blocking the event.
type Poller struct {
	client      types.Client
	logger      zerolog.Logger
	maxAttempts int
	baseDelay   time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller with the default 3 attempts and 2s base
// delay (2s, 4s between attempts).
func NewPoller(client types.Client, logger zerolog.Logger) *Poller {
	return &Poller{
		client:      client,
		logger:      logger.With().Str("component", "poller").Logger(),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       sleepCtx,
	}
}

// Await polls for the torrent's file manifest with exponential backoff.
// The delay after a failed attempt is baseDelay * 2^(attempt-1); no delay
// follows the final attempt. The second return value is false when the
// manifest could not be observed; the backoff only suspends the calling
// worker, never other events.
func (p *Poller) Await(ctx context.Context, hash string) (*Manifest, bool) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		manifest, err := p.fetch(ctx, hash)
		if err == nil && len(manifest.Files) > 0 {
			p.logger.Debug().
				Str("hash", hash).
				Int("attempt", attempt).
				Int("files", len(manifest.Files)).
				Msg("manifest retrieved")
			return manifest, true
		}

		if err != nil {
			p.logger.Debug().
				Err(err).
				Str("hash", hash).
				Int("attempt", attempt).
				Int("maxAttempts", p.maxAttempts).
				Msg("torrent not retrievable yet")
		} else {
			p.logger.Debug().
				Str("hash", hash).
				Int("attempt", attempt).
				Msg("torrent found but file list not yet populated")
		}

		if attempt < p.maxAttempts {
			delay := p.baseDelay << (attempt - 1)
			if err := p.sleep(ctx, delay); err != nil {
				return nil, false
			}
		}
	}

	return nil, false
}

func (p *Poller) fetch(ctx context.Context, hash string) (*Manifest, error) {
	id, err := p.client.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	files, err := p.client.Files(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Manifest{ClientID: id, Files: files}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
