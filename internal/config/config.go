package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"MI_ENV" default:"development"`

	HTTPPort    int           `envconfig:"MI_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"MI_HTTP_TIMEOUT" default:"15s"`

	BackendURL      string        `envconfig:"MI_BACKEND_URL" default:"http://localhost:9090"`
	RequestTimeout  time.Duration `envconfig:"MI_REQUEST_TIMEOUT" default:"15s"`
	DownloadTimeout time.Duration `envconfig:"MI_DOWNLOAD_TIMEOUT" default:"1h"`

	PollInterval   time.Duration `envconfig:"MI_POLL_INTERVAL" default:"2s"`
	PollErrorLimit int           `envconfig:"MI_POLL_ERROR_LIMIT" default:"5"`
	JobTimeout     time.Duration `envconfig:"MI_JOB_TIMEOUT" default:"35m"`
	RecordTTL      time.Duration `envconfig:"MI_RECORD_TTL" default:"30m"`
	RetryAttempts  int           `envconfig:"MI_RETRY_ATTEMPTS" default:"3"`
	RetryBase      time.Duration `envconfig:"MI_RETRY_BASE" default:"5s"`
	BackoffCap     time.Duration `envconfig:"MI_BACKOFF_CAP" default:"80s"`

	LibraryDir string `envconfig:"MI_LIBRARY_DIR" default:"./library"`
	TempDir    string `envconfig:"MI_TEMP_DIR" default:"./tmp"`
	StateFile  string `envconfig:"MI_STATE_FILE" default:"./state/pending_job.json"`

	ShutdownTimeout time.Duration `envconfig:"MI_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"MI_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"MI_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.BackendURL == "" {
		return fmt.Errorf("backend URL cannot be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", c.PollInterval)
	}
	if c.PollErrorLimit <= 0 {
		return fmt.Errorf("poll error limit must be positive: %d", c.PollErrorLimit)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job timeout must be positive: %s", c.JobTimeout)
	}
	if c.RecordTTL <= 0 {
		return fmt.Errorf("record TTL must be positive: %s", c.RecordTTL)
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retry attempts must be positive: %d", c.RetryAttempts)
	}

	if c.LibraryDir == "" {
		return fmt.Errorf("library directory cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}
	if c.TempDir == "" {
		return fmt.Errorf("temp directory cannot be empty")
	}

	return nil
}
