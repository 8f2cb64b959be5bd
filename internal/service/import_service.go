package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iqra-app/media-importer/internal/backoff"
	"github.com/iqra-app/media-importer/internal/config"
	"github.com/iqra-app/media-importer/internal/domain"
	apperrors "github.com/iqra-app/media-importer/internal/errors"
	"github.com/iqra-app/media-importer/internal/metrics"
	"github.com/iqra-app/media-importer/internal/poller"
	"github.com/iqra-app/media-importer/internal/storage"
	"github.com/iqra-app/media-importer/internal/validation"
)

// Transport is the full job transport the session sequences.
type Transport interface {
	FetchMetadata(ctx context.Context, rawURL string) (*domain.TrackMetadata, error)
	CreateJob(ctx context.Context, rawURL string) (*domain.JobHandle, error)
	PollStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)
	DownloadArtifact(ctx context.Context, jobID string) (*domain.Artifact, error)
	DownloadThumbnail(ctx context.Context, thumbURL string) (string, error)
}

// RecordStore is the single-slot durable store for the in-flight job.
type RecordStore interface {
	Save(rec *domain.PersistedJobRecord) error
	Load() (*domain.PersistedJobRecord, error)
	Clear() error
}

// ImportService orchestrates one import at a time: input validation,
// metadata fetch, job creation, polling, artifact placement, and the
// completion signal. It is the only component observers talk to.
type ImportService struct {
	transport Transport
	records   RecordStore
	library   *storage.FileStorage
	cfg       *config.Config
	notifier  Notifier
	logger    *slog.Logger

	mu        sync.Mutex
	busy      bool
	gen       uint64
	cancelRun context.CancelFunc
	startedAt time.Time
	snap      domain.Snapshot
}

// NewImportService creates the import session orchestrator. A nil
// notifier falls back to a log-based one.
func NewImportService(transport Transport, records RecordStore, library *storage.FileStorage, cfg *config.Config, notifier Notifier, logger *slog.Logger) *ImportService {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &ImportService{
		transport: transport,
		records:   records,
		library:   library,
		cfg:       cfg,
		notifier:  notifier,
		logger:    logger,
		snap:      domain.Snapshot{Phase: domain.PhaseIdle},
	}
}

// StartImport validates the request, claims the single import slot,
// and runs the import to a terminal state. It rejects synchronously,
// before any network call, when the URL fails the allow-list or an
// import is already active.
func (s *ImportService) StartImport(ctx context.Context, req domain.ImportRequest) (*domain.ImportOutcome, error) {
	if err := validation.ValidateSourceURL(req.SourceURL); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	runCtx, gen, err := s.begin(ctx, domain.PhaseFetchingMetadata, "Fetching track info", "", time.Time{})
	if err != nil {
		return nil, err
	}

	metrics.ImportsStarted.Inc()
	return s.runImport(runCtx, gen, req, nil)
}

// StartImportAsync performs the synchronous rejects and runs the rest
// of the import in the background. Used by the HTTP surface; progress
// is observed through Snapshot.
func (s *ImportService) StartImportAsync(req domain.ImportRequest) error {
	if err := validation.ValidateSourceURL(req.SourceURL); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	runCtx, gen, err := s.begin(context.Background(), domain.PhaseFetchingMetadata, "Fetching track info", "", time.Time{})
	if err != nil {
		return err
	}

	metrics.ImportsStarted.Inc()
	go func() {
		if _, err := s.runImport(runCtx, gen, req, nil); err != nil && !apperrors.IsCancelled(err) {
			s.logger.Error("background import failed", "url", req.SourceURL, "error", err)
		}
	}()
	return nil
}

// ResumeIfPending is invoked once at process start. If a valid
// persisted job record exists it reattaches to the job directly at the
// polling step, skipping metadata fetch and job creation. No-op when
// busy, when no record exists, or when the record is stale.
func (s *ImportService) ResumeIfPending(ctx context.Context) (*domain.ImportOutcome, error) {
	rec, err := s.records.Load()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	runCtx, gen, err := s.begin(ctx, domain.PhaseConverting, "Resuming conversion", rec.Title, rec.StartedAt)
	if err != nil {
		return nil, nil
	}

	metrics.ImportsResumed.Inc()
	s.logger.Info("resuming pending conversion job", "job_id", rec.JobID, "started_at", rec.StartedAt)
	return s.runImport(runCtx, gen, domain.ImportRequest{SourceURL: rec.SourceURL}, rec)
}

// Cancel aborts the in-flight import. Observable state and the
// persisted record are reset before Cancel returns; the poll loop's
// own cancellation checks bound how long the background task lingers
// to at most one backoff interval. The record is cleared while the
// session lock is held, so a successor cannot claim the slot until
// the slot is empty on disk too.
func (s *ImportService) Cancel() {
	s.mu.Lock()
	cancel := s.cancelRun
	s.cancelRun = nil
	if cancel != nil {
		s.gen++
		s.busy = false
		s.snap = domain.Snapshot{Phase: domain.PhaseCancelled}
		if err := s.records.Clear(); err != nil {
			s.logger.Error("failed to clear job record on cancel", "error", err)
		}
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	metrics.ImportsCancelled.Inc()
	s.logger.Info("import cancelled")
}

// Snapshot returns the current observable state of the session.
func (s *ImportService) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// begin claims the single import slot. startedAt is zero for fresh
// imports and the original job start for resumed ones, so the job
// ceiling keeps counting across restarts.
func (s *ImportService) begin(ctx context.Context, phase domain.ImportPhase, progress, title string, startedAt time.Time) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, 0, apperrors.AlreadyInProgress()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.gen++
	s.cancelRun = cancel
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	s.startedAt = startedAt
	s.snap = domain.Snapshot{
		Busy:     true,
		Phase:    phase,
		Progress: progress,
		Title:    title,
	}
	return runCtx, s.gen, nil
}

// runImport runs the import body and the 1 Hz elapsed ticker as a
// pair; the ticker is torn down the moment the body exits on any path,
// so it can never outlive the import's resources.
func (s *ImportService) runImport(ctx context.Context, gen uint64, req domain.ImportRequest, rec *domain.PersistedJobRecord) (*domain.ImportOutcome, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		s.tickElapsed(gctx, gen)
		return nil
	})

	var outcome *domain.ImportOutcome
	g.Go(func() error {
		defer stop()
		o, err := s.execute(gctx, gen, req, rec)
		outcome = o
		return err
	})

	err := g.Wait()
	s.finish(gen, outcome, err)
	return outcome, err
}

// execute sequences metadata fetch, job creation, polling, and
// finalization. rec non-nil means a resumed job: creation and metadata
// already happened in a prior process, so it goes straight to polling.
func (s *ImportService) execute(ctx context.Context, gen uint64, req domain.ImportRequest, rec *domain.PersistedJobRecord) (*domain.ImportOutcome, error) {
	var handle domain.JobHandle
	var meta *domain.TrackMetadata

	if rec != nil {
		handle = rec.Handle()
	} else {
		m, err := retryTransient(ctx, s.cfg.RetryAttempts, s.retryPolicy(), s.logger, func(ctx context.Context) (*domain.TrackMetadata, error) {
			return s.transport.FetchMetadata(ctx, req.SourceURL)
		})
		if err != nil {
			return nil, asTerminal(err, "metadata fetch")
		}
		meta = m
		s.setProgress(gen, domain.PhaseSubmitting, "Submitting conversion job", meta.Title)

		h, err := retryTransient(ctx, s.cfg.RetryAttempts, s.retryPolicy(), s.logger, func(ctx context.Context) (*domain.JobHandle, error) {
			return s.transport.CreateJob(ctx, req.SourceURL)
		})
		if err != nil {
			return nil, asTerminal(err, "job creation")
		}
		handle = *h
		handle.Title = meta.Title
		handle.Duration = meta.Duration

		record := &domain.PersistedJobRecord{
			JobID:     handle.JobID,
			SourceURL: handle.SourceURL,
			Title:     handle.Title,
			Duration:  handle.Duration,
			StartedAt: handle.CreatedAt,
		}
		if err := s.saveRecord(gen, record); err != nil {
			// The import can still finish; only restart resumption is lost.
			s.logger.Warn("failed to persist job record", "job_id", handle.JobID, "error", err)
		}

		s.setProgress(gen, domain.PhaseConverting, "Converting", handle.Title)
	}

	p := poller.New(s.transport, recordOwner{s: s, gen: gen}, poller.Config{
		PollInterval: s.cfg.PollInterval,
		ErrorLimit:   s.cfg.PollErrorLimit,
		JobTimeout:   s.cfg.JobTimeout,
		RetryPolicy:  s.retryPolicy(),
	}, s.logger, func(status *domain.JobStatus) {
		s.observeStatus(gen, status)
	})

	artifact, err := p.Run(ctx, handle)
	if err != nil {
		return nil, err
	}

	s.setProgress(gen, domain.PhaseSaving, "Saving to library", artifact.Title)
	return s.finalize(ctx, handle, meta, artifact)
}

// finalize places the artifact into the library under a fresh unique
// name and assembles the outcome. The thumbnail is best-effort: its
// failure never fails the import.
func (s *ImportService) finalize(ctx context.Context, handle domain.JobHandle, meta *domain.TrackMetadata, artifact *domain.Artifact) (*domain.ImportOutcome, error) {
	importID := uuid.New().String()
	fileName := importID + ".mp3"

	path, err := s.library.Place(artifact.Path, fileName)
	if err != nil {
		return nil, apperrors.StorageFailure("place artifact in library", err)
	}
	if size, err := s.library.GetFileSize(fileName); err == nil {
		s.logger.Info("artifact placed", "file", fileName, "bytes", size)
	}

	outcome := &domain.ImportOutcome{
		FileName: fileName,
		FilePath: path,
		Title:    firstNonEmpty(artifact.Title, handle.Title),
		Artist:   artifact.Artist,
		Duration: artifact.Duration,
	}
	if outcome.Duration == 0 {
		outcome.Duration = handle.Duration
	}
	if meta != nil {
		if outcome.Artist == "" {
			outcome.Artist = meta.Artist
		}
		if meta.Thumbnail != "" {
			outcome.ThumbnailPath = s.saveThumbnail(ctx, meta.Thumbnail, importID)
		}
	}

	return outcome, nil
}

func (s *ImportService) saveThumbnail(ctx context.Context, thumbURL, importID string) string {
	tmp, err := s.transport.DownloadThumbnail(ctx, thumbURL)
	if err != nil {
		s.logger.Warn("thumbnail download failed", "url", thumbURL, "error", err)
		return ""
	}

	placed, err := s.library.Place(tmp, importID+".jpg")
	if err != nil {
		s.logger.Warn("thumbnail save failed", "error", err)
		return ""
	}
	return placed
}

// finish publishes the terminal state and releases the import slot. A
// stale generation means Cancel already reset the session (and may
// have handed the slot to a new import), so nothing is touched.
func (s *ImportService) finish(gen uint64, outcome *domain.ImportOutcome, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}

	s.busy = false
	s.cancelRun = nil
	elapsed := time.Since(s.startedAt)

	switch {
	case err == nil:
		s.snap = domain.Snapshot{
			Phase:          domain.PhaseCompleted,
			Title:          outcome.Title,
			ElapsedSeconds: int(elapsed.Seconds()),
		}
	case apperrors.IsCancelled(err):
		s.snap = domain.Snapshot{Phase: domain.PhaseCancelled}
	default:
		s.snap = domain.Snapshot{
			Phase: domain.PhaseFailed,
			Error: displayMessage(err),
		}
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		metrics.ImportsCompleted.Inc()
		metrics.ImportDuration.Observe(elapsed.Seconds())
		s.logger.Info("import completed", "title", outcome.Title, "file", outcome.FileName, "elapsed", elapsed)
		s.notifier.ImportCompleted(outcome)
	case apperrors.IsCancelled(err):
		metrics.ImportsCancelled.Inc()
		s.logger.Info("import cancelled")
	default:
		metrics.ImportsFailed.Inc()
		s.logger.Error("import failed", "error", err)
	}
}

// tickElapsed is the 1 Hz progress ticker. It only touches the
// snapshot while its own generation still owns the session.
func (s *ImportService) tickElapsed(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.gen == gen && s.busy {
				s.snap.ElapsedSeconds = int(time.Since(s.startedAt).Seconds())
				if s.snap.Phase == domain.PhaseConverting {
					s.snap.Progress = fmt.Sprintf("Converting (%s)", formatElapsed(s.snap.ElapsedSeconds))
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *ImportService) observeStatus(gen uint64, status *domain.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !s.busy {
		return
	}

	if status.Title != "" {
		s.snap.Title = status.Title
	}
	switch status.State {
	case domain.JobStateCompleted:
		s.snap.Phase = domain.PhaseDownloading
		s.snap.Progress = "Downloading audio"
	default:
		if status.Progress != "" {
			s.snap.Progress = fmt.Sprintf("Converting %s (%s)", status.Progress, formatElapsed(s.snap.ElapsedSeconds))
		}
	}
}

func (s *ImportService) setProgress(gen uint64, phase domain.ImportPhase, progress, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !s.busy {
		return
	}
	s.snap.Phase = phase
	s.snap.Progress = progress
	if title != "" {
		s.snap.Title = title
	}
}

// saveRecord persists the job record only while the run still owns the
// session, under the session lock. Either the write lands before a
// concurrent Cancel bumps the generation (and Cancel's clear removes
// it), or the generation check fails and nothing is written; a
// superseded run can never leave a record behind.
func (s *ImportService) saveRecord(gen uint64, rec *domain.PersistedJobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return nil
	}
	return s.records.Save(rec)
}

// recordOwner is the poller's view of the record slot. Clearing is
// gated on session ownership: once the generation has moved on, the
// slot may already hold a successor import's record, and a superseded
// run's teardown must not touch it.
type recordOwner struct {
	s   *ImportService
	gen uint64
}

func (o recordOwner) Clear() error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if o.s.gen != o.gen {
		return nil
	}
	return o.s.records.Clear()
}

func (s *ImportService) retryPolicy() backoff.Policy {
	return backoff.Policy{
		Base:   s.cfg.RetryBase,
		Factor: 2.0,
		Cap:    s.cfg.BackoffCap,
	}
}

// retryTransient retries fn on transient failures only, up to attempts
// total calls, sleeping the policy delay between them. Terminal
// backend decisions pass through after a single attempt.
func retryTransient[T any](ctx context.Context, attempts int, policy backoff.Policy, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, apperrors.Cancelled()
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !apperrors.IsTransient(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		logger.Warn("transient backend failure, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if serr := backoff.Sleep(ctx, delay); serr != nil {
			return zero, apperrors.Cancelled()
		}
	}

	return zero, lastErr
}

// asTerminal maps an exhausted or unclassified error to its terminal
// form; classified errors (queue full, cancelled, ...) pass through.
func asTerminal(err error, operation string) error {
	var ie *apperrors.ImportError
	if errors.As(err, &ie) {
		return err
	}
	return apperrors.BackendUnavailable(operation, err)
}

func displayMessage(err error) string {
	var ie *apperrors.ImportError
	if errors.As(err, &ie) {
		return ie.Message
	}
	return err.Error()
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
