package domain

import (
	"time"
)

// ImportRequest is the immutable input to an import: the media URL the
// user wants converted into a locally playable track.
type ImportRequest struct {
	SourceURL string `json:"url" validate:"required"`
}

// JobHandle identifies one backend conversion job. It is created once,
// at job-creation time, and never mutated; it is the unit persisted to
// survive process restarts.
type JobHandle struct {
	JobID     string
	SourceURL string
	Title     string
	Duration  int
	CreatedAt time.Time
}

// TrackMetadata is the pre-flight metadata the backend knows about a
// source URL before any conversion has happened.
type TrackMetadata struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail"`
}

// JobState is the backend-reported state of a conversion job.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateUnknown    JobState = "unknown"
)

// ParseJobState maps a raw backend status string to a JobState.
// Unrecognized strings map to JobStateUnknown, which the poller treats
// like a non-terminal state.
func ParseJobState(raw string) JobState {
	switch raw {
	case "pending":
		return JobStatePending
	case "processing":
		return JobStateProcessing
	case "completed":
		return JobStateCompleted
	case "failed":
		return JobStateFailed
	default:
		return JobStateUnknown
	}
}

// Terminal reports whether the backend will take no further action on
// a job in this state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// JobStatus is one poll's view of a job. It is produced fresh on every
// poll and never cached beyond the decision it drives.
type JobStatus struct {
	JobID    string
	State    JobState
	Progress string
	Title    string
	Artist   string
	Duration int
	FileSize int64
	Error    string
}

// Artifact is the downloaded conversion result before it has been
// placed into the library: a temp file plus the resolved track fields
// carried in the download response headers.
type Artifact struct {
	Path     string
	Title    string
	Artist   string
	Duration int
	Size     int64
}

// ImportOutcome is the terminal artifact of a successful import.
// Ownership of the file transfers to the surrounding library store as
// soon as the outcome is returned.
type ImportOutcome struct {
	FileName      string `json:"file_name"`
	FilePath      string `json:"file_path"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Duration      int    `json:"duration"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}
