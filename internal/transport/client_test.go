package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqra-app/media-importer/internal/domain"
	apperrors "github.com/iqra-app/media-importer/internal/errors"
)

func newTestClient(t *testing.T, backendURL string) *Client {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	return NewClient(backendURL, t.TempDir(), 5*time.Second, 10*time.Second, logger)
}

func TestClient_FetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metadata", r.URL.Path)
		assert.Equal(t, "https://youtu.be/abc", r.URL.Query().Get("url"))

		json.NewEncoder(w).Encode(map[string]any{
			"title":     "Some Track",
			"artist":    "Some Artist",
			"duration":  182,
			"thumbnail": "https://img.example/thumb.jpg",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	meta, err := c.FetchMetadata(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "Some Track", meta.Title)
	assert.Equal(t, "Some Artist", meta.Artist)
	assert.Equal(t, 182, meta.Duration)
	assert.Equal(t, "https://img.example/thumb.jpg", meta.Thumbnail)
}

func TestClient_FetchMetadata_NonOKIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.FetchMetadata(context.Background(), "https://youtu.be/abc")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClient_CreateJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]string{
			"job_id": "job-42",
			"status": "pending",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	handle, err := c.CreateJob(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "job-42", handle.JobID)
	assert.Equal(t, "https://youtu.be/abc", handle.SourceURL)
	assert.False(t, handle.CreatedAt.IsZero())
}

func TestClient_CreateJob_QueueFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"detail": "queue full"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.CreateJob(context.Background(), "https://youtu.be/abc")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindQueueFull, apperrors.KindOf(err))
	assert.False(t, apperrors.IsTransient(err))

	var ie *apperrors.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "queue full", ie.Message)
}

func TestClient_CreateJob_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.CreateJob(context.Background(), "https://youtu.be/abc")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClient_CreateJob_ClientErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.CreateJob(context.Background(), "https://youtu.be/abc")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindJobFailed, apperrors.KindOf(err))
	assert.False(t, apperrors.IsTransient(err))
}

func TestClient_PollStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/job-42", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]any{
			"job_id":   "job-42",
			"status":   "processing",
			"progress": "64%",
			"title":    "Some Track",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	status, err := c.PollStatus(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateProcessing, status.State)
	assert.Equal(t, "64%", status.Progress)
	assert.Equal(t, "Some Track", status.Title)
}

func TestClient_PollStatus_NotFoundIsExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.PollStatus(context.Background(), "job-42")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindJobExpired, apperrors.KindOf(err))
	assert.False(t, apperrors.IsTransient(err))
}

func TestClient_PollStatus_UnparseableBodyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.PollStatus(context.Background(), "job-42")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClient_PollStatus_UnrecognizedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-42", "status": "warming_up"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	status, err := c.PollStatus(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateUnknown, status.State)
}

func TestClient_DownloadArtifact(t *testing.T) {
	audio := []byte("mp3-payload-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/job-42/download", r.URL.Path)

		w.Header().Set("X-Track-Title", "My%20Song")
		w.Header().Set("X-Track-Artist", "Some%20Artist")
		w.Header().Set("X-Track-Duration", "182")
		w.Write(audio)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	artifact, err := c.DownloadArtifact(context.Background(), "job-42")
	require.NoError(t, err)
	defer os.Remove(artifact.Path)

	assert.Equal(t, "My Song", artifact.Title)
	assert.Equal(t, "Some Artist", artifact.Artist)
	assert.Equal(t, 182, artifact.Duration)
	assert.Equal(t, int64(len(audio)), artifact.Size)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, audio, data)
}

func TestClient_DownloadArtifact_NonOKIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.DownloadArtifact(context.Background(), "job-42")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindJobFailed, apperrors.KindOf(err))
	assert.False(t, apperrors.IsTransient(err), "a consumed job is never retried")
}

func TestClient_DownloadThumbnail(t *testing.T) {
	image := []byte("jpeg-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(image)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	path, err := c.DownloadThumbnail(context.Background(), srv.URL+"/thumb.jpg")
	require.NoError(t, err)
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, image, data)
}
