package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies every terminal import error.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindAlreadyInProgress  Kind = "ALREADY_IN_PROGRESS"
	KindBackendUnavailable Kind = "BACKEND_UNAVAILABLE"
	KindQueueFull          Kind = "QUEUE_FULL"
	KindJobExpired         Kind = "JOB_EXPIRED"
	KindJobFailed          Kind = "JOB_FAILED"
	KindTimedOut           Kind = "TIMED_OUT"
	KindCancelled          Kind = "CANCELLED"
	KindStorageFailure     Kind = "STORAGE_FAILURE"
)

// ImportError is a classified import failure carrying a short
// human-readable message and an optional underlying cause.
type ImportError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ImportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ImportError) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, message string, cause error) *ImportError {
	return &ImportError{Kind: kind, Message: message, Cause: cause}
}

func InvalidInput(message string) *ImportError {
	return newError(KindInvalidInput, message, nil)
}

func AlreadyInProgress() *ImportError {
	return newError(KindAlreadyInProgress, "an import is already in progress", nil)
}

func BackendUnavailable(operation string, cause error) *ImportError {
	return newError(KindBackendUnavailable, fmt.Sprintf("conversion backend unreachable during %s", operation), cause)
}

// QueueFull carries the backend's capacity-rejection detail verbatim.
func QueueFull(detail string) *ImportError {
	if detail == "" {
		detail = "conversion queue is full"
	}
	return newError(KindQueueFull, detail, nil)
}

func JobExpired() *ImportError {
	return newError(KindJobExpired, "conversion job expired on the server", nil)
}

// JobFailed carries the backend-reported failure message verbatim.
func JobFailed(message string) *ImportError {
	if message == "" {
		message = "conversion failed"
	}
	return newError(KindJobFailed, message, nil)
}

func TimedOut(ceiling time.Duration) *ImportError {
	return newError(KindTimedOut, fmt.Sprintf("conversion did not finish within %s", ceiling), nil)
}

func Cancelled() *ImportError {
	return newError(KindCancelled, "import cancelled", nil)
}

func StorageFailure(message string, cause error) *ImportError {
	return newError(KindStorageFailure, message, cause)
}

// KindOf returns the classification of err, or "" for unclassified
// errors.
func KindOf(err error) Kind {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// IsCancelled reports whether err represents a user-initiated
// cancellation rather than a true failure.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks a transport error as retryable at the caller's
// discretion. Terminal backend decisions (queue full, job expired,
// job failed) are never marked transient.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable by Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
