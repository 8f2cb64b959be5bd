package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iqra-app/media-importer/internal/domain"
)

// RecordStore is the durable single-slot store for the one conversion
// job currently in flight. At most one record exists at a time; the
// import session enforces that a new import is rejected while one is
// active.
type RecordStore struct {
	mu   sync.Mutex
	file string
	ttl  time.Duration
}

// NewRecordStore creates a store backed by a single JSON file. ttl is
// the staleness ceiling applied at load time.
func NewRecordStore(filePath string, ttl time.Duration) *RecordStore {
	return &RecordStore{
		file: filepath.Clean(filePath),
		ttl:  ttl,
	}
}

// Save writes the record synchronously. Called immediately after job
// creation succeeds, before the first poll, which is what makes
// resumption possible if the process dies mid-poll.
func (s *RecordStore) Save(rec *domain.PersistedJobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}

	if err := os.WriteFile(s.file, data, 0o644); err != nil {
		return fmt.Errorf("write job record: %w", err)
	}

	slog.Debug("job record persisted", "job_id", rec.JobID, "file", s.file)
	return nil
}

// Load reads the record once at startup. Returns (nil, nil) when no
// record exists. A record older than the staleness ceiling, or one
// that fails to parse, is deleted and reported as absent.
func (s *RecordStore) Load() (*domain.PersistedJobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read job record: %w", err)
	}

	var rec domain.PersistedJobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("job record is corrupt, discarding", "file", s.file, "error", err)
		s.remove()
		return nil, nil
	}

	if time.Since(rec.StartedAt) > s.ttl {
		slog.Info("job record is stale, discarding", "job_id", rec.JobID, "started_at", rec.StartedAt)
		s.remove()
		return nil, nil
	}

	return &rec, nil
}

// Clear removes the record. Idempotent; called on every terminal
// transition of the job poller and on explicit cancellation.
func (s *RecordStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove()
	return nil
}

func (s *RecordStore) remove() {
	if err := os.Remove(s.file); err != nil && !os.IsNotExist(err) {
		slog.Error("failed to remove job record", "file", s.file, "error", err)
	}
}
