package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/downloader/types"
	"github.com/grabgate/grabgate/internal/policy"
	"github.com/grabgate/grabgate/internal/sonarr"
)

// eventTypeGrab is the only webhook event type that triggers processing.
const eventTypeGrab = "Grab"

// defaultEventTimeout bounds one event's processing, including poll
// backoff and all removal calls.
const defaultEventTimeout = 2 * time.Minute

// Service drives the grab-event pipeline: capture the queue ID, await the
// manifest, classify it, and execute the removal strategy. Each event runs
// on its own worker goroutine so a poller sleeping in backoff never blocks
// the acceptance of new webhook events.
type Service struct {
	orchestrator Orchestrator
	client       types.Client
	policy       *policy.Policy
	poller       *Poller
	strategy     *Strategy
	reporter     Reporter
	logger       zerolog.Logger

	eventTimeout time.Duration
	wg           sync.WaitGroup
}

// NewService creates the webhook orchestration service.
func NewService(orchestrator Orchestrator, client types.Client, pol *policy.Policy, reporter Reporter, logger zerolog.Logger) *Service {
	componentLogger := logger.With().Str("component", "filter").Logger()
	return &Service{
		orchestrator: orchestrator,
		client:       client,
		policy:       pol,
		poller:       NewPoller(client, logger),
		strategy:     NewStrategy(orchestrator, client, logger),
		reporter:     reporter,
		logger:       componentLogger,
		eventTimeout: defaultEventTimeout,
	}
}

// Accept validates the payload and dispatches a worker for Grab events.
// The returned string is the acknowledgment status for the webhook
// response; it never reflects downstream success, since the orchestrator
// treats the webhook as fire-and-forget.
func (s *Service) Accept(payload WebhookPayload) string {
	if payload.EventType != eventTypeGrab {
		s.logger.Debug().Str("eventType", payload.EventType).Msg("ignoring event type")
		return "ignored"
	}

	if payload.DownloadID == "" {
		s.logger.Warn().Msg("grab event without download ID, nothing to verify")
		s.reporter.AddActivity("warning", "grab event without download ID")
		return "no_download_id"
	}

	event := GrabEvent{
		ID:           uuid.NewString(),
		EventType:    payload.EventType,
		DownloadID:   payload.DownloadID,
		SeriesTitle:  payload.Series.Title,
		ReleaseTitle: payload.Release.Title,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.eventTimeout)
		defer cancel()

		s.process(ctx, event)
	}()

	return "accepted"
}

// Wait blocks until all in-flight workers have finished. Used on
// shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) process(ctx context.Context, event GrabEvent) {
	logger := s.logger.With().
		Str("event", event.ID).
		Str("downloadId", event.DownloadID).
		Str("release", event.ReleaseTitle).
		Logger()

	logger.Info().Str("series", event.SeriesTitle).Msg("processing grab")

	// Capture the queue ID immediately: the orchestrator may consume the
	// queue entry during the poll delay below.
	event.QueueID = s.captureQueueID(ctx, event, logger)

	s.reporter.AddActivity("poll", fmt.Sprintf("awaiting manifest for %s", event.DownloadID))

	manifest, ok := s.poller.Await(ctx, event.DownloadID)
	if !ok {
		// Cannot verify: proceed without blocking rather than stalling
		// or failing the event.
		logger.Warn().Msg("manifest unavailable after retries, treating as non-blocked")
		s.reporter.RecordUnresolved()
		s.reporter.AddActivity("unresolved", fmt.Sprintf("manifest unavailable for %s", event.ReleaseTitle))
		return
	}

	verdict := s.policy.Classify(manifest.Files)
	s.reporter.AddActivity("verdict", fmt.Sprintf("%s: %d files, blocked=%t", event.ReleaseTitle, len(manifest.Files), verdict.Blocked))

	if !verdict.Blocked {
		logger.Info().Int("files", len(manifest.Files)).Msg("no blocked extensions found")
		s.reporter.RecordProcessed()
		return
	}

	logger.Warn().
		Strs("matchedExtensions", verdict.MatchedExtensions).
		Strs("matchedFiles", verdict.MatchedFiles).
		Msg("blocked files found in release")

	outcome := s.strategy.Execute(ctx, event, manifest)

	s.reporter.RecordBlocked(event.ReleaseTitle, verdict.MatchedFiles)
	s.reporter.AddActivity("removal", describeOutcome(event.ReleaseTitle, outcome))
	if len(outcome.Errors) > 0 {
		s.reporter.RecordError()
	}

	logger.Info().
		Bool("removedFromQueue", outcome.RemovedFromQueue).
		Bool("removedFromClient", outcome.RemovedFromClient).
		Bool("blocklisted", outcome.Blocklisted).
		Strs("errors", outcome.Errors).
		Msg("removal finished")
}

// captureQueueID resolves the ephemeral queue handle at event-receipt
// time. A missing entry is an expected race, not a fault.
func (s *Service) captureQueueID(ctx context.Context, event GrabEvent, logger zerolog.Logger) *int64 {
	item, err := s.orchestrator.GetQueueItem(ctx, event.DownloadID)
	if err != nil {
		if errors.Is(err, sonarr.ErrNotFound) {
			logger.Warn().Msg("queue entry not found, may not be able to use queue removal")
		} else {
			logger.Error().Err(err).Msg("failed to query queue")
		}
		return nil
	}
	if item == nil {
		logger.Warn().Msg("queue entry not found, may not be able to use queue removal")
		return nil
	}

	logger.Debug().Int64("queueId", item.ID).Msg("captured queue ID")
	return &item.ID
}

func describeOutcome(release string, outcome RemovalOutcome) string {
	var parts []string
	if outcome.RemovedFromQueue {
		parts = append(parts, "removed from queue")
	}
	if outcome.RemovedFromClient {
		parts = append(parts, "removed from client")
	}
	if outcome.Blocklisted {
		parts = append(parts, "blocklisted")
	}
	if len(parts) == 0 {
		parts = append(parts, "no removal achieved")
	}
	if len(outcome.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s)", len(outcome.Errors)))
	}
	return release + ": " + strings.Join(parts, ", ")
}
