// Package ledger is the durable record of jobs and their append-only logs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"podcast-transcriber/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	podcast TEXT NOT NULL,
	episode_number TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	logged_at TEXT NOT NULL,
	message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_job_id ON logs(job_id);
`

// Store persists jobs and logs in a single SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates parent directories, opens the database with WAL and
// enforced foreign keys, and bootstraps the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new row in state NEW with zero progress.
func (s *Store) CreateJob(ctx context.Context, id string, meta domain.Metadata) (domain.Job, error) {
	createdAt := s.now().UTC()
	job := domain.Job{
		ID:            id,
		Title:         meta.Title,
		Podcast:       meta.Podcast,
		EpisodeNumber: meta.EpisodeNumber,
		Status:        domain.JobStatusNew,
		Progress:      0,
		CreatedAt:     createdAt,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, podcast, episode_number, status, progress, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		job.ID, job.Title, job.Podcast, job.EpisodeNumber,
		string(job.Status), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// GetJob returns one job or domain.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, podcast, episode_number, status, progress, created_at
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns one page of jobs, most recently created first.
// Callers paginate by re-issuing with a new offset.
func (s *Store) ListJobs(ctx context.Context, offset, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, podcast, episode_number, status, progress, created_at
		FROM jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the total number of jobs in the ledger.
func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// UpdateJobStatus moves a job from an expected prior status to a new
// one and sets progress, as a single guarded write. A mismatch on the
// expected status yields domain.ErrInvalidTransition; an unknown id
// yields domain.ErrNotFound.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, from, to domain.JobStatus, progress int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ? WHERE id = ? AND status = ?`,
		string(to), progress, id, string(from))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is not %s", domain.ErrInvalidTransition, id, from)
}

// BumpProgress adds a non-negative delta to a job's progress counter.
func (s *Store) BumpProgress(ctx context.Context, id string, delta int) error {
	if delta <= 0 {
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = progress + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("bump progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump progress: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendLog inserts one log line with a server-assigned timestamp.
func (s *Store) AppendLog(ctx context.Context, jobID, message string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (job_id, logged_at, message)
		SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM jobs WHERE id = ?)`,
		jobID, s.now().UTC().Format(time.RFC3339Nano), message, jobID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Logs returns a job's log lines in insertion order. The autoincrement
// id orders entries written within the same clock tick.
func (s *Store) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, logged_at, message FROM logs
		WHERE job_id = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var loggedAt string
		if err := rows.Scan(&entry.ID, &entry.JobID, &loggedAt, &entry.Message); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, loggedAt)
		if err != nil {
			return nil, fmt.Errorf("parse log timestamp: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	return entries, nil
}

// DeleteJob removes a job; its log lines cascade away with it.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanJob reads one jobs row into a domain.Job.
func scanJob(row scanner) (domain.Job, error) {
	var job domain.Job
	var status, createdAt string
	err := row.Scan(&job.ID, &job.Title, &job.Podcast, &job.EpisodeNumber,
		&status, &job.Progress, &createdAt)
	if err != nil {
		return domain.Job{}, err
	}

	job.Status = domain.JobStatus(status)
	job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.Job{}, fmt.Errorf("parse created_at: %w", err)
	}
	return job, nil
}

// OpenForTests opens a store with an injectable clock.
func OpenForTests(path string, now func() time.Time) (*Store, error) {
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	store.now = now
	return store, nil
}
