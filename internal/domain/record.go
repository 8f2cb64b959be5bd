package domain

import "time"

// PersistedJobRecord is the durable single-slot record of the one job
// currently in flight. It is written immediately after job creation
// and cleared on every terminal transition, so a failed import never
// masquerades as resumable.
type PersistedJobRecord struct {
	JobID     string    `json:"job_id"`
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Handle reconstructs the JobHandle for a resumed job.
func (r *PersistedJobRecord) Handle() JobHandle {
	return JobHandle{
		JobID:     r.JobID,
		SourceURL: r.SourceURL,
		Title:     r.Title,
		Duration:  r.Duration,
		CreatedAt: r.StartedAt,
	}
}
