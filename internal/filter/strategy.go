package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/downloader/types"
	"github.com/grabgate/grabgate/internal/sonarr"
)

// Strategy executes the removal and blocklist steps for a blocked grab.
//
// The queue-based path goes first: it is a single atomic remote operation
// with built-in blocklist support. The orchestrator may have already
// dequeued the item by the time this code runs, so direct client removal
// is the fallback; history-based blocklisting is the only fallback
// blocklist mechanism since the REST API rejects direct blocklist inserts.
// Failures in any single step are recorded and do not abort the remaining
// steps: leaving a torrent un-removed is worse than leaving it
// un-blocklisted.
type Strategy struct {
	orchestrator Orchestrator
	client       types.Client
	logger       zerolog.Logger
}

// NewStrategy creates a removal strategy.
func NewStrategy(orchestrator Orchestrator, client types.Client, logger zerolog.Logger) *Strategy {
	return &Strategy{
		orchestrator: orchestrator,
		client:       client,
		logger:       logger.With().Str("component", "removal").Logger(),
	}
}

// Execute runs the removal/blocklist sequence for a blocked event and
// returns the accumulated outcome. Exactly one outcome is produced per
// blocked event.
func (s *Strategy) Execute(ctx context.Context, event GrabEvent, manifest *Manifest) RemovalOutcome {
	outcome := RemovalOutcome{}
	logger := s.logger.With().Str("event", event.ID).Str("downloadId", event.DownloadID).Logger()

	if event.QueueID != nil {
		if err := s.orchestrator.RemoveQueueItem(ctx, *event.QueueID, true); err != nil {
			// "Not found" means the orchestrator consumed the entry
			// during the poll delay; fall through to client removal.
			logger.Warn().
				Err(err).
				Int64("queueId", *event.QueueID).
				Msg("queue removal failed, falling back to client removal")
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("queue removal: %v", err))
		} else {
			logger.Info().
				Int64("queueId", *event.QueueID).
				Str("release", event.ReleaseTitle).
				Msg("removed from queue and blocklisted")
			outcome.RemovedFromQueue = true
			outcome.Blocklisted = true
			return outcome
		}
	} else {
		logger.Warn().Msg("no queue ID captured, removing directly from download client")
	}

	if err := s.client.Remove(ctx, manifest.ClientID, true); err != nil {
		logger.Error().
			Err(err).
			Str("clientId", manifest.ClientID).
			Msg("failed to remove torrent from download client")
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("client removal: %v", err))
	} else {
		logger.Info().
			Str("clientId", manifest.ClientID).
			Msg("removed torrent directly from download client")
		outcome.RemovedFromClient = true
	}

	outcome.Blocklisted = s.blocklistViaHistory(ctx, event, &outcome, logger)

	return outcome
}

// blocklistViaHistory marks the most recent "grabbed" history record as
// failed. No matching record is logged and skipped, not fatal.
func (s *Strategy) blocklistViaHistory(ctx context.Context, event GrabEvent, outcome *RemovalOutcome, logger zerolog.Logger) bool {
	records, err := s.orchestrator.GetHistory(ctx, event.DownloadID, sonarr.EventTypeGrabbed)
	if err != nil {
		logger.Error().Err(err).Msg("failed to query history for blocklisting")
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("history lookup: %v", err))
		return false
	}

	record := mostRecentGrabbed(records)
	if record == nil {
		logger.Warn().Msg("no grabbed history record found, blocklist skipped")
		return false
	}

	if err := s.orchestrator.MarkHistoryFailed(ctx, record.ID); err != nil {
		if errors.Is(err, sonarr.ErrNotFound) {
			logger.Warn().Int64("historyId", record.ID).Msg("history record vanished before blocklisting")
		} else {
			logger.Error().Err(err).Int64("historyId", record.ID).Msg("failed to mark history record failed")
		}
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("blocklist: %v", err))
		return false
	}

	logger.Info().Int64("historyId", record.ID).Msg("blocklisted via history record")
	return true
}

// mostRecentGrabbed picks the first record with the grabbed event type;
// the history API returns records most recent first.
func mostRecentGrabbed(records []sonarr.HistoryRecord) *sonarr.HistoryRecord {
	for i := range records {
		if records[i].EventType == sonarr.EventTypeGrabbed {
			return &records[i]
		}
	}
	return nil
}
