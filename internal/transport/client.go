package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iqra-app/media-importer/internal/domain"
	apperrors "github.com/iqra-app/media-importer/internal/errors"
)

// Header names carried on the artifact download response. Values are
// percent-encoded by the backend.
const (
	headerTrackTitle    = "X-Track-Title"
	headerTrackArtist   = "X-Track-Artist"
	headerTrackDuration = "X-Track-Duration"
)

// downloadHeaderTimeout bounds how long the backend may take to start
// streaming the artifact; the overall transfer is bounded separately
// by the download client timeout.
const downloadHeaderTimeout = 60 * time.Second

// Client performs the stateless HTTP operations against the
// conversion backend: pre-flight metadata, job creation, status
// polling, and artifact download.
type Client struct {
	baseURL  string
	tempDir  string
	api      *http.Client
	download *http.Client
	logger   *slog.Logger
}

// NewClient creates a backend client. requestTimeout applies to
// metadata, creation, and polling; downloadTimeout bounds the whole
// artifact transfer, since the payload is large.
func NewClient(baseURL, tempDir string, requestTimeout, downloadTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tempDir: tempDir,
		api: &http.Client{
			Timeout: requestTimeout,
		},
		download: &http.Client{
			Timeout: downloadTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: downloadHeaderTimeout,
			},
		},
		logger: logger,
	}
}

// FetchMetadata fetches pre-flight track metadata for a source URL.
// Any non-200 response is a transient failure at the caller's
// discretion.
func (c *Client) FetchMetadata(ctx context.Context, rawURL string) (*domain.TrackMetadata, error) {
	endpoint := fmt.Sprintf("%s/metadata?url=%s", c.baseURL, url.QueryEscape(rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create metadata request: %w", err)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("metadata request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Transient(fmt.Errorf("metadata fetch: unexpected status %s", resp.Status))
	}

	var meta domain.TrackMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, apperrors.Transient(fmt.Errorf("decode metadata response: %w", err))
	}

	c.logger.Debug("metadata fetched", "url", rawURL, "title", meta.Title, "duration", meta.Duration)
	return &meta, nil
}

type createJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type queueFullResponse struct {
	Detail string `json:"detail"`
}

// CreateJob submits a conversion job for a source URL. A 503 response
// means the backend queue is full and is surfaced as a terminal error
// carrying the backend's detail; 5xx/408/429 are transient; any other
// failure is terminal.
func (c *Client) CreateJob(ctx context.Context, rawURL string) (*domain.JobHandle, error) {
	endpoint := fmt.Sprintf("%s/jobs?url=%s", c.baseURL, url.QueryEscape(rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create job request: %w", err)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("job creation request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body createJobResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, apperrors.Transient(fmt.Errorf("decode job creation response: %w", err))
		}
		if body.JobID == "" {
			return nil, apperrors.Transient(fmt.Errorf("job creation response missing job id"))
		}

		c.logger.Info("conversion job created", "job_id", body.JobID, "url", rawURL)
		return &domain.JobHandle{
			JobID:     body.JobID,
			SourceURL: rawURL,
			CreatedAt: time.Now(),
		}, nil

	case resp.StatusCode == http.StatusServiceUnavailable:
		var body queueFullResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, apperrors.QueueFull(body.Detail)

	case isRetryableStatus(resp.StatusCode):
		return nil, apperrors.Transient(fmt.Errorf("job creation: unexpected status %s", resp.Status))

	default:
		return nil, apperrors.JobFailed(fmt.Sprintf("job creation rejected: %s", resp.Status))
	}
}

type pollStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress string `json:"progress"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"`
	FileSize int64  `json:"file_size"`
	Error    string `json:"error"`
}

// PollStatus fetches the current state of a job. A 404 means the job
// expired server-side and is terminal; a body that fails to parse is
// treated as a transient error, not a protocol violation.
func (c *Client) PollStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s", c.baseURL, url.PathEscape(jobID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("status request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.JobExpired()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Transient(fmt.Errorf("status poll: unexpected status %s", resp.Status))
	}

	var body pollStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.Transient(fmt.Errorf("decode status response: %w", err))
	}

	return &domain.JobStatus{
		JobID:    body.JobID,
		State:    domain.ParseJobState(body.Status),
		Progress: body.Progress,
		Title:    body.Title,
		Artist:   body.Artist,
		Duration: body.Duration,
		FileSize: body.FileSize,
		Error:    body.Error,
	}, nil
}

// DownloadArtifact streams the converted audio for a completed job
// into a temp file. The job is considered consumed either way, so a
// non-200 response here is terminal and never retried. Resolved track
// fields come from the response headers and override whatever was
// known from metadata.
func (c *Client) DownloadArtifact(ctx context.Context, jobID string) (*domain.Artifact, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s/download", c.baseURL, url.PathEscape(jobID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, apperrors.JobFailed(fmt.Sprintf("artifact download failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.JobFailed(fmt.Sprintf("artifact download rejected: %s", resp.Status))
	}

	file, err := os.CreateTemp(c.tempDir, "import-*.mp3")
	if err != nil {
		return nil, apperrors.StorageFailure("create temp file for artifact", err)
	}

	size, err := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err != nil {
		os.Remove(file.Name())
		return nil, apperrors.JobFailed(fmt.Sprintf("artifact transfer interrupted: %v", err))
	}
	if closeErr != nil {
		os.Remove(file.Name())
		return nil, apperrors.StorageFailure("close artifact temp file", closeErr)
	}

	artifact := &domain.Artifact{
		Path:     file.Name(),
		Title:    decodeHeader(resp.Header.Get(headerTrackTitle)),
		Artist:   decodeHeader(resp.Header.Get(headerTrackArtist)),
		Duration: atoiOrZero(resp.Header.Get(headerTrackDuration)),
		Size:     size,
	}

	c.logger.Info("artifact downloaded", "job_id", jobID, "bytes", size, "title", artifact.Title)
	return artifact, nil
}

// DownloadThumbnail fetches a thumbnail image into a temp file. Used
// best-effort after a completed import.
func (c *Client) DownloadThumbnail(ctx context.Context, thumbURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbURL, nil)
	if err != nil {
		return "", fmt.Errorf("create thumbnail request: %w", err)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return "", fmt.Errorf("thumbnail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail fetch: unexpected status %s", resp.Status)
	}

	file, err := os.CreateTemp(c.tempDir, "thumb-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create temp file for thumbnail: %w", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close thumbnail file: %w", err)
	}

	return file.Name(), nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}

func decodeHeader(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
