// Package stats is the statistics collaborator: it owns the persisted
// counters and activity log the filter workers report into.
package stats

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/policy"
)

// maxActivity caps the persisted activity ring.
const maxActivity = 50

// recentActivityLimit is how many entries a snapshot returns.
const recentActivityLimit = 20

// Service records and aggregates processing statistics. All writes go
// through a single mutex so concurrent workers never lose updates in the
// read-modify-write cycles on the counters.
type Service struct {
	db        *sql.DB
	logger    zerolog.Logger
	startTime time.Time

	mu sync.Mutex
}

// Stats is the aggregated view served to callers.
type Stats struct {
	UptimeSeconds   int64            `json:"uptimeSeconds"`
	TotalProcessed  int64            `json:"totalProcessed"`
	TotalBlocked    int64            `json:"totalBlocked"`
	TotalErrors     int64            `json:"totalErrors"`
	TotalUnresolved int64            `json:"totalUnresolved"`
	ExtensionCounts map[string]int64 `json:"extensionCounts"`
	RecentActivity  []ActivityEntry  `json:"recentActivity"`
}

// ActivityEntry is one row of the recent activity ring.
type ActivityEntry struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// NewService creates a statistics service backed by the given database.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		logger:    logger.With().Str("component", "stats").Logger(),
		startTime: time.Now(),
	}
}

// RecordProcessed counts a clean, fully processed grab event.
func (s *Service) RecordProcessed() {
	s.increment("processed")
}

// RecordBlocked counts a blocked release and tallies the extensions of
// its matched files.
func (s *Service) RecordBlocked(releaseTitle string, matchedFiles []string) {
	s.increment("blocked")

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.opCtx()
	defer cancel()

	for _, file := range matchedFiles {
		ext := policy.Ext(file)
		if ext == "" {
			ext = "unknown"
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO extension_counts (extension, count) VALUES (?, 1)
			 ON CONFLICT(extension) DO UPDATE SET count = count + 1`, ext)
		if err != nil {
			s.logger.Error().Err(err).Str("extension", ext).Msg("failed to tally extension")
		}

		s.insertActivity(ctx, "blocked", releaseTitle+": "+file)
	}
}

// RecordUnresolved counts an event whose manifest never became
// observable.
func (s *Service) RecordUnresolved() {
	s.increment("unresolved")
}

// RecordError counts an event that finished with at least one failed
// removal or blocklist step.
func (s *Service) RecordError() {
	s.increment("errors")
}

// AddActivity appends a discrete processing step to the activity ring.
func (s *Service) AddActivity(kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.opCtx()
	defer cancel()

	s.insertActivity(ctx, kind, message)
}

// Snapshot returns the current aggregated statistics.
func (s *Service) Snapshot(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		ExtensionCounts: make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		switch name {
		case "processed":
			stats.TotalProcessed = value
		case "blocked":
			stats.TotalBlocked = value
		case "errors":
			stats.TotalErrors = value
		case "unresolved":
			stats.TotalUnresolved = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	extRows, err := s.db.QueryContext(ctx, `SELECT extension, count FROM extension_counts ORDER BY count DESC`)
	if err != nil {
		return nil, err
	}
	defer extRows.Close()

	for extRows.Next() {
		var ext string
		var count int64
		if err := extRows.Scan(&ext, &count); err != nil {
			return nil, err
		}
		stats.ExtensionCounts[ext] = count
	}
	if err := extRows.Err(); err != nil {
		return nil, err
	}

	actRows, err := s.db.QueryContext(ctx,
		`SELECT kind, message, created_at FROM activity ORDER BY id DESC LIMIT ?`, recentActivityLimit)
	if err != nil {
		return nil, err
	}
	defer actRows.Close()

	for actRows.Next() {
		var entry ActivityEntry
		if err := actRows.Scan(&entry.Kind, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, err
		}
		stats.RecentActivity = append(stats.RecentActivity, entry)
	}

	return stats, actRows.Err()
}

// Reset zeroes all counters and clears the activity ring.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `UPDATE counters SET value = 0`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM extension_counts`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM activity`); err != nil {
		return err
	}

	s.startTime = time.Now()
	return nil
}

// TrimActivity removes activity rows beyond the ring capacity. Called by
// the cleanup task; inserts also trim opportunistically.
func (s *Service) TrimActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.trimActivity(ctx)
}

func (s *Service) increment(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.opCtx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `UPDATE counters SET value = value + 1 WHERE name = ?`, name); err != nil {
		s.logger.Error().Err(err).Str("counter", name).Msg("failed to increment counter")
	}
}

// insertActivity requires s.mu to be held.
func (s *Service) insertActivity(ctx context.Context, kind, message string) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (kind, message) VALUES (?, ?)`, kind, message); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("failed to record activity")
		return
	}

	if err := s.trimActivity(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to trim activity ring")
	}
}

// trimActivity requires s.mu to be held.
func (s *Service) trimActivity(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM activity WHERE id NOT IN (SELECT id FROM activity ORDER BY id DESC LIMIT ?)`, maxActivity)
	return err
}

func (s *Service) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
