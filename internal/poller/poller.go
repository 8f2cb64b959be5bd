package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iqra-app/media-importer/internal/backoff"
	"github.com/iqra-app/media-importer/internal/domain"
	apperrors "github.com/iqra-app/media-importer/internal/errors"
	"github.com/iqra-app/media-importer/internal/metrics"
)

// Backend is the subset of the job transport the poller drives.
type Backend interface {
	PollStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)
	DownloadArtifact(ctx context.Context, jobID string) (*domain.Artifact, error)
}

// RecordKeeper clears the persisted job record on terminal
// transitions.
type RecordKeeper interface {
	Clear() error
}

// Config holds the poller's timing knobs.
type Config struct {
	// PollInterval is the flat sleep between polls while the job is
	// non-terminal.
	PollInterval time.Duration
	// ErrorLimit is how many transient transport errors are tolerated
	// before the job is declared unreachable.
	ErrorLimit int
	// JobTimeout is the wall-clock ceiling for the whole job, measured
	// from job creation and independent of any transport timeout.
	JobTimeout time.Duration
	// RetryPolicy spaces out retries after transient transport errors.
	RetryPolicy backoff.Policy
}

// Poller drives the poll loop for one job, fresh or resumed, and
// performs the single artifact download once the job completes. The
// same state machine serves both entry points, so retry and timeout
// values cannot drift between them.
type Poller struct {
	backend  Backend
	records  RecordKeeper
	cfg      Config
	logger   *slog.Logger
	onStatus func(*domain.JobStatus)
}

// New creates a Poller. onStatus, if non-nil, is invoked with every
// successfully fetched status so the session can publish progress.
func New(backend Backend, records RecordKeeper, cfg Config, logger *slog.Logger, onStatus func(*domain.JobStatus)) *Poller {
	return &Poller{
		backend:  backend,
		records:  records,
		cfg:      cfg,
		logger:   logger,
		onStatus: onStatus,
	}
}

// Run polls the job to a terminal state and downloads the artifact on
// completion. Cancellation is checked before every sleep and every
// network call, so cancellation latency is bounded by one backoff
// interval. The persisted record is cleared on every terminal exit,
// success or not.
func (p *Poller) Run(ctx context.Context, handle domain.JobHandle) (*domain.Artifact, error) {
	defer func() {
		if err := p.records.Clear(); err != nil {
			p.logger.Error("failed to clear job record", "job_id", handle.JobID, "error", err)
		}
	}()

	start := handle.CreatedAt
	if start.IsZero() {
		start = time.Now()
	}

	errCount := 0

	for {
		if ctx.Err() != nil {
			return nil, apperrors.Cancelled()
		}

		if elapsed := time.Since(start); elapsed > p.cfg.JobTimeout {
			p.logger.Warn("job exceeded wall-clock ceiling", "job_id", handle.JobID, "elapsed", elapsed)
			return nil, apperrors.TimedOut(p.cfg.JobTimeout)
		}

		status, err := p.backend.PollStatus(ctx, handle.JobID)
		metrics.PollsTotal.Inc()
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.Cancelled()
			}

			var ie *apperrors.ImportError
			if errors.As(err, &ie) {
				// Authoritative backend decision, never retried.
				return nil, err
			}

			if apperrors.IsTransient(err) {
				errCount++
				metrics.PollErrors.Inc()
				p.logger.Warn("status poll failed", "job_id", handle.JobID, "attempt", errCount, "error", err)

				if errCount > p.cfg.ErrorLimit {
					return nil, apperrors.BackendUnavailable("status polling", err)
				}
				if serr := backoff.Sleep(ctx, p.cfg.RetryPolicy.Delay(errCount-1)); serr != nil {
					return nil, apperrors.Cancelled()
				}
				continue
			}

			return nil, apperrors.JobFailed(err.Error())
		}

		if p.onStatus != nil {
			p.onStatus(status)
		}

		switch status.State {
		case domain.JobStateCompleted:
			return p.downloadArtifact(ctx, handle)

		case domain.JobStateFailed:
			return nil, apperrors.JobFailed(status.Error)

		default:
			// pending, processing, or anything unrecognized: the job is
			// still alive, so wait the flat interval and poll again.
			if serr := backoff.Sleep(ctx, p.cfg.PollInterval); serr != nil {
				return nil, apperrors.Cancelled()
			}
		}
	}
}

// downloadArtifact performs the single download for a completed job.
// The job is consumed either way, so failures here are terminal.
func (p *Poller) downloadArtifact(ctx context.Context, handle domain.JobHandle) (*domain.Artifact, error) {
	if ctx.Err() != nil {
		return nil, apperrors.Cancelled()
	}

	artifact, err := p.backend.DownloadArtifact(ctx, handle.JobID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Cancelled()
		}
		return nil, err
	}

	metrics.DownloadBytes.Add(float64(artifact.Size))
	return artifact, nil
}
