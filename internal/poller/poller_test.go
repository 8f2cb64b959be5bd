package poller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqra-app/media-importer/internal/backoff"
	"github.com/iqra-app/media-importer/internal/domain"
	apperrors "github.com/iqra-app/media-importer/internal/errors"
)

type fakeBackend struct {
	mu            sync.Mutex
	pollCalls     int
	downloadCalls int

	pollFn     func(call int) (*domain.JobStatus, error)
	downloadFn func(call int) (*domain.Artifact, error)
}

func (f *fakeBackend) PollStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	f.mu.Lock()
	f.pollCalls++
	call := f.pollCalls
	f.mu.Unlock()
	return f.pollFn(call)
}

func (f *fakeBackend) DownloadArtifact(ctx context.Context, jobID string) (*domain.Artifact, error) {
	f.mu.Lock()
	f.downloadCalls++
	call := f.downloadCalls
	f.mu.Unlock()
	if f.downloadFn == nil {
		return &domain.Artifact{Path: "/tmp/fake.mp3", Title: "Fake", Size: 1}, nil
	}
	return f.downloadFn(call)
}

func (f *fakeBackend) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func (f *fakeBackend) downloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls
}

type fakeRecords struct {
	mu     sync.Mutex
	clears int
}

func (f *fakeRecords) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeRecords) cleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears > 0
}

func testConfig() Config {
	return Config{
		PollInterval: 2 * time.Millisecond,
		ErrorLimit:   5,
		JobTimeout:   time.Minute,
		RetryPolicy:  backoff.Policy{Base: 2 * time.Millisecond, Factor: 2.0, Cap: 10 * time.Millisecond},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
}

func testHandle() domain.JobHandle {
	return domain.JobHandle{JobID: "job-42", SourceURL: "https://youtu.be/abc", CreatedAt: time.Now()}
}

func status(state domain.JobState) *domain.JobStatus {
	return &domain.JobStatus{JobID: "job-42", State: state}
}

func TestPoller_PendingThenCompleted(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			if call <= 2 {
				return status(domain.JobStatePending), nil
			}
			return status(domain.JobStateCompleted), nil
		},
	}
	records := &fakeRecords{}

	p := New(backend, records, testConfig(), testLogger(), nil)

	artifact, err := p.Run(context.Background(), testHandle())
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, 3, backend.polls())
	assert.Equal(t, 1, backend.downloads(), "download happens exactly once")
	assert.True(t, records.cleared())
}

func TestPoller_UnrecognizedStatusKeepsPolling(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			if call == 1 {
				return status(domain.JobStateUnknown), nil
			}
			return status(domain.JobStateCompleted), nil
		},
	}

	p := New(backend, &fakeRecords{}, testConfig(), testLogger(), nil)

	_, err := p.Run(context.Background(), testHandle())
	assert.NoError(t, err)
	assert.Equal(t, 2, backend.polls())
}

func TestPoller_BackendFailure(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			s := status(domain.JobStateFailed)
			s.Error = "ffmpeg exited with code 1"
			return s, nil
		},
	}
	records := &fakeRecords{}

	p := New(backend, records, testConfig(), testLogger(), nil)

	_, err := p.Run(context.Background(), testHandle())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindJobFailed, apperrors.KindOf(err))

	var ie *apperrors.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "ffmpeg exited with code 1", ie.Message, "backend message passes through verbatim")

	assert.Equal(t, 0, backend.downloads())
	assert.True(t, records.cleared())
}

func TestPoller_ExpiredJob(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			return nil, apperrors.JobExpired()
		},
	}
	records := &fakeRecords{}

	p := New(backend, records, testConfig(), testLogger(), nil)

	_, err := p.Run(context.Background(), testHandle())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindJobExpired, apperrors.KindOf(err))
	assert.Equal(t, 1, backend.polls(), "an expired job is never re-polled")
	assert.True(t, records.cleared())
}

func TestPoller_TransientErrorsUpToLimit(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			if call <= 3 {
				return nil, apperrors.Transient(errors.New("status 502"))
			}
			return status(domain.JobStateCompleted), nil
		},
	}

	p := New(backend, &fakeRecords{}, testConfig(), testLogger(), nil)

	_, err := p.Run(context.Background(), testHandle())
	assert.NoError(t, err, "transient errors under the ceiling are retried")
	assert.Equal(t, 4, backend.polls())
}

func TestPoller_TransientErrorsExceedLimit(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			return nil, apperrors.Transient(errors.New("connection refused"))
		},
	}
	records := &fakeRecords{}

	cfg := testConfig()
	cfg.ErrorLimit = 2

	p := New(backend, records, cfg, testLogger(), nil)

	_, err := p.Run(context.Background(), testHandle())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindBackendUnavailable, apperrors.KindOf(err))
	assert.Equal(t, 3, backend.polls())
	assert.True(t, records.cleared())
}

func TestPoller_JobCeilingExceeded(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			return status(domain.JobStatePending), nil
		},
	}
	records := &fakeRecords{}

	cfg := testConfig()
	cfg.JobTimeout = 10 * time.Minute

	handle := testHandle()
	handle.CreatedAt = time.Now().Add(-11 * time.Minute)

	p := New(backend, records, cfg, testLogger(), nil)

	_, err := p.Run(context.Background(), handle)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTimedOut, apperrors.KindOf(err))
	assert.Equal(t, 0, backend.polls(), "the ceiling is checked before any network call")
	assert.True(t, records.cleared())
}

func TestPoller_CancelledBeforeFirstPoll(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			return status(domain.JobStatePending), nil
		},
	}
	records := &fakeRecords{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(backend, records, testConfig(), testLogger(), nil)

	_, err := p.Run(ctx, testHandle())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindCancelled, apperrors.KindOf(err))
	assert.Equal(t, 0, backend.polls())
	assert.True(t, records.cleared())
}

func TestPoller_CancelledDuringSleep(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			return status(domain.JobStatePending), nil
		},
	}
	records := &fakeRecords{}

	cfg := testConfig()
	cfg.PollInterval = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())

	p := New(backend, records, cfg, testLogger(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, testHandle())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Equal(t, apperrors.KindCancelled, apperrors.KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("poller did not observe cancellation within one backoff interval")
	}

	assert.True(t, records.cleared())
}

func TestPoller_StatusHookObservesProgress(t *testing.T) {
	backend := &fakeBackend{
		pollFn: func(call int) (*domain.JobStatus, error) {
			if call == 1 {
				s := status(domain.JobStateProcessing)
				s.Progress = "40%"
				return s, nil
			}
			return status(domain.JobStateCompleted), nil
		},
	}

	var seen []domain.JobState
	p := New(backend, &fakeRecords{}, testConfig(), testLogger(), func(s *domain.JobStatus) {
		seen = append(seen, s.State)
	})

	_, err := p.Run(context.Background(), testHandle())
	require.NoError(t, err)
	assert.Equal(t, []domain.JobState{domain.JobStateProcessing, domain.JobStateCompleted}, seen)
}
