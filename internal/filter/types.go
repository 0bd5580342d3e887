// Package filter contains the webhook-to-removal orchestration core:
// capturing the queue ID before it disappears, polling the download client
// for the file manifest, applying the extension policy, and executing the
// removal/blocklist strategy.
package filter

import (
	"context"

	"github.com/grabgate/grabgate/internal/sonarr"
)

// GrabEvent is the immutable view of an inbound grab notification. All
// externally-volatile identifiers are captured into it at ingress time and
// never re-derived later in the same event's processing.
type GrabEvent struct {
	// ID correlates all log lines and activity records for one event.
	ID           string
	EventType    string
	DownloadID   string
	SeriesTitle  string
	ReleaseTitle string

	// QueueID is the orchestrator's ephemeral queue handle, captured
	// before any waiting. Nil when the queue entry was already consumed.
	QueueID *int64
}

// Manifest is the file list of a torrent as observed in the download
// client.
type Manifest struct {
	ClientID string
	Files    []string
}

// RemovalOutcome accumulates what the removal strategy achieved. It is
// kept even on partial failure; it is the unit reported to statistics.
type RemovalOutcome struct {
	RemovedFromQueue  bool
	RemovedFromClient bool
	Blocklisted       bool
	Errors            []string
}

// Orchestrator is the capability set needed from the download
// orchestrator's REST API.
type Orchestrator interface {
	GetQueueItem(ctx context.Context, downloadID string) (*sonarr.QueueItem, error)
	RemoveQueueItem(ctx context.Context, queueID int64, blocklist bool) error
	GetHistory(ctx context.Context, downloadID, eventType string) ([]sonarr.HistoryRecord, error)
	MarkHistoryFailed(ctx context.Context, historyID int64) error
}

// Reporter receives discrete processing events for the statistics
// collaborator. Implementations must be safe for concurrent use.
type Reporter interface {
	RecordProcessed()
	RecordBlocked(releaseTitle string, matchedFiles []string)
	RecordUnresolved()
	RecordError()
	AddActivity(kind, message string)
}

// WebhookPayload is the inbound webhook body. Only eventType and
// downloadId are required; title fields are informational.
type WebhookPayload struct {
	EventType  string `json:"eventType"`
	DownloadID string `json:"downloadId"`
	Series struct {
		Title string `json:"title"`
	} `json:"series"`
	Release struct {
		Title string `json:"title"`
	} `json:"release"`
}
