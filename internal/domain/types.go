package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus tracks the lifecycle state of a transcription job.
type JobStatus string

const (
	JobStatusNew     JobStatus = "NEW"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// ErrNotFound is returned when a job id is unknown to the ledger.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition is returned for illegal lifecycle moves.
var ErrInvalidTransition = errors.New("invalid job transition")

// Metadata carries the immutable fields supplied at submission.
type Metadata struct {
	Title         string `json:"title"`
	Podcast       string `json:"podcast"`
	EpisodeNumber string `json:"episodeNumber"`
}

// Job is one row of the ledger.
type Job struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Podcast       string    `json:"podcast"`
	EpisodeNumber string    `json:"episodeNumber"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LogEntry is one append-only log line belonging to a job.
// Entries are ordered by ID; the timestamp is informational.
type LogEntry struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"jobId"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Terminal reports whether a status admits no further progress
// without an explicit retry.
func Terminal(status JobStatus) bool {
	return status == JobStatusDone || status == JobStatusFailed
}

// ValidTransition enforces the allowed state machine edges. The
// terminal-to-NEW edges exist only for retry, which resets a job
// before the worker picks it up again.
func ValidTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusNew:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusDone || to == JobStatusFailed
	case JobStatusDone, JobStatusFailed:
		return to == JobStatusNew
	default:
		return false
	}
}

// ValidationError reports a missing or malformed submission field.
type ValidationError struct {
	Field   string
	Message string
}

// Error formats the validation failure for logs and responses.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
