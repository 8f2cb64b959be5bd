package domain

// ImportPhase is the single tagged state of the import session. All
// display fields in a Snapshot are derived from it, so impossible
// combinations ("not busy but has a pending title") cannot occur.
type ImportPhase string

const (
	PhaseIdle             ImportPhase = "idle"
	PhaseFetchingMetadata ImportPhase = "fetching_metadata"
	PhaseSubmitting       ImportPhase = "submitting"
	PhaseConverting       ImportPhase = "converting"
	PhaseDownloading      ImportPhase = "downloading"
	PhaseSaving           ImportPhase = "saving"
	PhaseCompleted        ImportPhase = "completed"
	PhaseFailed           ImportPhase = "failed"
	PhaseCancelled        ImportPhase = "cancelled"
)

// Active reports whether an import is currently in flight.
func (p ImportPhase) Active() bool {
	switch p {
	case PhaseFetchingMetadata, PhaseSubmitting, PhaseConverting, PhaseDownloading, PhaseSaving:
		return true
	}
	return false
}

// Snapshot is the observable state of the import session: a single
// linear progress narrative published by the session and read by any
// observer (API handler, logger, test).
type Snapshot struct {
	Busy           bool        `json:"busy"`
	Phase          ImportPhase `json:"phase"`
	Progress       string      `json:"progress,omitempty"`
	Title          string      `json:"title,omitempty"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	Error          string      `json:"error,omitempty"`
}
