// Package blob stores uploaded audio and result artifacts on disk,
// keyed by job id.
package blob

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	audioFileName  = "audio"
	resultFileName = "transcript.json"
)

// Store lays out one directory per job under a root data directory.
type Store struct {
	root string
}

// NewStore creates the root directory and returns a store over it.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// SaveAudio streams an uploaded file into the job's directory.
func (s *Store) SaveAudio(jobID string, r io.Reader) error {
	return s.write(jobID, audioFileName, r)
}

// AudioPath returns the stored upload path, or an error if the job
// has no stored audio.
func (s *Store) AudioPath(jobID string) (string, error) {
	path := filepath.Join(s.jobDir(jobID), audioFileName)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stored audio for job %s: %w", jobID, err)
	}
	return path, nil
}

// SaveResult writes the final transcript artifact for a job.
func (s *Store) SaveResult(jobID string, data []byte) error {
	return s.write(jobID, resultFileName, bytes.NewReader(data))
}

// ResultPath returns where a job's result artifact lands.
func (s *Store) ResultPath(jobID string) string {
	return filepath.Join(s.jobDir(jobID), resultFileName)
}

// WorkDir creates and returns a scratch directory for pipeline stages.
func (s *Store) WorkDir(jobID string) (string, error) {
	dir := filepath.Join(s.jobDir(jobID), "work")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// Remove deletes everything stored for a job.
func (s *Store) Remove(jobID string) error {
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		return fmt.Errorf("remove job blobs: %w", err)
	}
	return nil
}

// jobDir resolves the per-job directory inside the data root.
func (s *Store) jobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// write streams content to a temp file and renames it into place so
// readers never observe a partial artifact.
func (s *Store) write(jobID, name string, r io.Reader) error {
	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}
