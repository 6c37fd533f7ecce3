// Package pipeline defines the boundary to the external whisperx
// engine. The core treats every stage call as slow and fallible and
// never inspects what is behind a handle.
package pipeline

import (
	"context"
	"fmt"
)

// Stage names, in fixed execution order.
const (
	StageLoadModel      = "load-model"
	StageLoadAudio      = "load-audio"
	StageTranscribe     = "transcribe"
	StageAlign          = "align"
	StageDiarize        = "diarize"
	StageAssignSpeakers = "assign-speakers"
	StagePersistResult  = "persist-result"
)

// Opaque handles produced by the engine. A ref is meaningful only to
// the engine implementation that issued it.
type (
	// Model is a loaded transcription model.
	Model struct{ Ref string }
	// Audio is a decoded audio buffer.
	Audio struct{ Ref string }
	// Segments are (possibly aligned) transcription segments.
	Segments struct{ Ref string }
	// AlignModel is a loaded alignment model with its metadata.
	AlignModel struct {
		Ref      string
		Metadata string
	}
	// Diarization is the speaker segmentation output.
	Diarization struct{ Ref string }
	// Result is the final speaker-attributed transcript artifact.
	Result struct{ Path string }
)

// Engine is the external transcription collaborator. Each job gets
// its own workDir for intermediate artifacts.
type Engine interface {
	LoadModel(ctx context.Context, workDir string) (Model, error)
	LoadAudio(ctx context.Context, workDir, audioPath string) (Audio, error)
	Transcribe(ctx context.Context, workDir string, model Model, audio Audio) (Segments, error)
	LoadAlignModel(ctx context.Context, workDir string) (AlignModel, error)
	Align(ctx context.Context, workDir string, segments Segments, alignModel AlignModel, audio Audio) (Segments, error)
	Diarize(ctx context.Context, workDir string, audio Audio) (Diarization, error)
	AssignSpeakers(ctx context.Context, workDir string, diarization Diarization, segments Segments) (Result, error)
}

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

// Error formats stage failures for logs and job history.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
