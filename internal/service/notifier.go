package service

import (
	"log/slog"

	"github.com/iqra-app/media-importer/internal/domain"
)

// Notifier emits the local completion signal once an import finishes.
// It is a side effect, not part of the import contract; an
// implementation must never fail the import.
type Notifier interface {
	ImportCompleted(outcome *domain.ImportOutcome)
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that announces completion in the
// log, the default stand-in for a platform notification.
func NewLogNotifier(logger *slog.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) ImportCompleted(outcome *domain.ImportOutcome) {
	n.logger.Info("track ready", "title", outcome.Title, "artist", outcome.Artist, "file", outcome.FileName)
}
