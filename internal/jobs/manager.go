// Package jobs enforces the job lifecycle on top of the ledger and is
// the single point of truth for what should happen to a job next.
package jobs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"podcast-transcriber/internal/domain"
)

// Ledger is the durable store the manager writes through.
type Ledger interface {
	CreateJob(ctx context.Context, id string, meta domain.Metadata) (domain.Job, error)
	GetJob(ctx context.Context, id string) (domain.Job, error)
	ListJobs(ctx context.Context, offset, limit int) ([]domain.Job, error)
	UpdateJobStatus(ctx context.Context, id string, from, to domain.JobStatus, progress int) error
	BumpProgress(ctx context.Context, id string, delta int) error
	AppendLog(ctx context.Context, jobID, message string) error
	Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error)
	DeleteJob(ctx context.Context, id string) error
}

// Blobs stores uploaded audio keyed by job id.
type Blobs interface {
	SaveAudio(jobID string, r io.Reader) error
	AudioPath(jobID string) (string, error)
	Remove(jobID string) error
}

// Dispatcher hands accepted jobs to the worker coordinator.
type Dispatcher interface {
	Enqueue(jobID string) error
}

// Manager coordinates validation, persistence, and dispatch.
type Manager struct {
	ledger     Ledger
	blobs      Blobs
	dispatcher Dispatcher
	newID      func() string
}

// NewManager wires the lifecycle manager to its collaborators.
func NewManager(ledger Ledger, blobs Blobs, dispatcher Dispatcher) *Manager {
	return &Manager{
		ledger:     ledger,
		blobs:      blobs,
		dispatcher: dispatcher,
		newID:      func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Submit validates the submission, persists the upload and the NEW
// row, and dispatches the job. Validation happens before any row is
// created, so a rejected request leaves no trace. A full queue rolls
// the row and the upload back.
func (m *Manager) Submit(ctx context.Context, meta domain.Metadata, file io.Reader) (domain.Job, error) {
	if err := validate(meta, file); err != nil {
		return domain.Job{}, err
	}

	id := m.newID()
	if err := m.blobs.SaveAudio(id, file); err != nil {
		return domain.Job{}, fmt.Errorf("store upload: %w", err)
	}

	job, err := m.ledger.CreateJob(ctx, id, meta)
	if err != nil {
		_ = m.blobs.Remove(id)
		return domain.Job{}, err
	}

	if err := m.dispatcher.Enqueue(id); err != nil {
		_ = m.ledger.DeleteJob(ctx, id)
		_ = m.blobs.Remove(id)
		return domain.Job{}, err
	}
	return job, nil
}

// Retry reopens a terminal job and re-dispatches its stored audio.
// The pipeline restarts from the first stage; progress resets.
func (m *Manager) Retry(ctx context.Context, id string) error {
	job, err := m.ledger.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !domain.Terminal(job.Status) {
		return fmt.Errorf("%w: cannot retry job %s in status %s", domain.ErrInvalidTransition, id, job.Status)
	}
	if _, err := m.blobs.AudioPath(id); err != nil {
		return fmt.Errorf("retry job %s: %w", id, err)
	}

	if err := m.ledger.UpdateJobStatus(ctx, id, job.Status, domain.JobStatusNew, 0); err != nil {
		return err
	}
	if err := m.ledger.AppendLog(ctx, id, "Retry requested, restarting from the first stage"); err != nil {
		return err
	}

	if err := m.dispatcher.Enqueue(id); err != nil {
		// Put the job back where it was so it stays retryable.
		_ = m.ledger.UpdateJobStatus(ctx, id, domain.JobStatusNew, job.Status, job.Progress)
		return err
	}
	return nil
}

// Status returns the composite view the polling page renders.
func (m *Manager) Status(ctx context.Context, id string) (domain.Job, []domain.LogEntry, error) {
	job, err := m.ledger.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, nil, err
	}
	logs, err := m.ledger.Logs(ctx, id)
	if err != nil {
		return domain.Job{}, nil, err
	}
	return job, logs, nil
}

// List returns one page of jobs, newest first.
func (m *Manager) List(ctx context.Context, offset, limit int) ([]domain.Job, error) {
	return m.ledger.ListJobs(ctx, offset, limit)
}

// LogAndProgress appends one log line and optionally bumps the
// progress counter. It is the coordinator's per-stage transition event.
func (m *Manager) LogAndProgress(ctx context.Context, id, message string, delta int) error {
	if err := m.ledger.AppendLog(ctx, id, message); err != nil {
		return err
	}
	if delta > 0 {
		return m.ledger.BumpProgress(ctx, id, delta)
	}
	return nil
}

// Begin performs the guarded NEW -> RUNNING move and writes the first
// log line, so every job that leaves NEW has log history.
func (m *Manager) Begin(ctx context.Context, id string) (domain.Job, error) {
	if err := m.ledger.UpdateJobStatus(ctx, id, domain.JobStatusNew, domain.JobStatusRunning, 0); err != nil {
		return domain.Job{}, err
	}
	job, err := m.ledger.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	banner := fmt.Sprintf("Starting WhisperX on %s from %s episode %s", id, job.Podcast, job.EpisodeNumber)
	if err := m.ledger.AppendLog(ctx, id, banner); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// Complete performs the guarded RUNNING -> DONE move.
func (m *Manager) Complete(ctx context.Context, id string, progress int) error {
	if err := m.ledger.UpdateJobStatus(ctx, id, domain.JobStatusRunning, domain.JobStatusDone, progress); err != nil {
		return err
	}
	return m.ledger.AppendLog(ctx, id, fmt.Sprintf("Done with %s", id))
}

// Fail performs the guarded RUNNING -> FAILED move, recording why.
func (m *Manager) Fail(ctx context.Context, id string, cause error) error {
	if err := m.ledger.AppendLog(ctx, id, fmt.Sprintf("Pipeline failed: %v", cause)); err != nil {
		return err
	}
	job, err := m.ledger.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return m.ledger.UpdateJobStatus(ctx, id, domain.JobStatusRunning, domain.JobStatusFailed, job.Progress)
}

// validate rejects submissions with missing fields or no file.
func validate(meta domain.Metadata, file io.Reader) error {
	if strings.TrimSpace(meta.Title) == "" {
		return &domain.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if strings.TrimSpace(meta.Podcast) == "" {
		return &domain.ValidationError{Field: "podcast", Message: "must not be empty"}
	}
	if strings.TrimSpace(meta.EpisodeNumber) == "" {
		return &domain.ValidationError{Field: "episode", Message: "must not be empty"}
	}
	if file == nil {
		return &domain.ValidationError{Field: "file", Message: "no file uploaded"}
	}
	return nil
}
