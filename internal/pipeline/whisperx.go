package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Settings configures the whisperx driver invocations.
type Settings struct {
	Device      string
	ComputeType string
	Language    string
	BatchSize   int
	HFToken     string
}

// commandResult captures one driver invocation outcome.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, env []string, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, env []string, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// ExecEngine drives the whisperx pipeline through a driver binary,
// one subcommand per stage. Handles are artifact paths inside the
// job's work directory.
type ExecEngine struct {
	bin      string
	settings Settings
	runner   commandRunner
}

// NewExecEngine constructs the production engine.
func NewExecEngine(bin string, settings Settings) *ExecEngine {
	return &ExecEngine{
		bin:      bin,
		settings: settings,
		runner:   &execRunner{},
	}
}

// LoadModel loads the transcription model onto the configured device.
func (e *ExecEngine) LoadModel(ctx context.Context, workDir string) (Model, error) {
	out := filepath.Join(workDir, "model.ref")
	err := e.run(ctx, StageLoadModel, "loading transcription model", nil,
		"load-model",
		"--device", e.settings.Device,
		"--compute-type", e.settings.ComputeType,
		"--language", e.settings.Language,
		"--out", out,
	)
	if err != nil {
		return Model{}, err
	}
	return Model{Ref: out}, nil
}

// LoadAudio decodes the uploaded file into the engine's audio format.
func (e *ExecEngine) LoadAudio(ctx context.Context, workDir, audioPath string) (Audio, error) {
	out := filepath.Join(workDir, "audio.ref")
	err := e.run(ctx, StageLoadAudio, "loading audio file", nil,
		"load-audio",
		"--in", audioPath,
		"--out", out,
	)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Ref: out}, nil
}

// Transcribe produces raw segments from the loaded audio.
func (e *ExecEngine) Transcribe(ctx context.Context, workDir string, model Model, audio Audio) (Segments, error) {
	out := filepath.Join(workDir, "segments.json")
	err := e.run(ctx, StageTranscribe, "transcription failed", nil,
		"transcribe",
		"--model", model.Ref,
		"--audio", audio.Ref,
		"--batch-size", fmt.Sprintf("%d", e.settings.BatchSize),
		"--language", e.settings.Language,
		"--out", out,
	)
	if err != nil {
		return Segments{}, err
	}
	return Segments{Ref: out}, nil
}

// LoadAlignModel loads the language-specific alignment model.
func (e *ExecEngine) LoadAlignModel(ctx context.Context, workDir string) (AlignModel, error) {
	out := filepath.Join(workDir, "align-model.ref")
	meta := filepath.Join(workDir, "align-metadata.json")
	err := e.run(ctx, StageAlign, "loading alignment model", nil,
		"load-align-model",
		"--language", e.settings.Language,
		"--device", e.settings.Device,
		"--out", out,
		"--metadata-out", meta,
	)
	if err != nil {
		return AlignModel{}, err
	}
	return AlignModel{Ref: out, Metadata: meta}, nil
}

// Align refines segment timestamps with the alignment model.
func (e *ExecEngine) Align(ctx context.Context, workDir string, segments Segments, alignModel AlignModel, audio Audio) (Segments, error) {
	out := filepath.Join(workDir, "aligned.json")
	err := e.run(ctx, StageAlign, "timestamp alignment failed", nil,
		"align",
		"--segments", segments.Ref,
		"--align-model", alignModel.Ref,
		"--metadata", alignModel.Metadata,
		"--audio", audio.Ref,
		"--device", e.settings.Device,
		"--out", out,
	)
	if err != nil {
		return Segments{}, err
	}
	return Segments{Ref: out}, nil
}

// Diarize segments the audio by speaker. The auth token travels via
// the environment so it never shows up in a process listing.
func (e *ExecEngine) Diarize(ctx context.Context, workDir string, audio Audio) (Diarization, error) {
	out := filepath.Join(workDir, "diarization.json")
	var env []string
	if e.settings.HFToken != "" {
		env = []string{"HF_TOKEN=" + e.settings.HFToken}
	}
	err := e.run(ctx, StageDiarize, "speaker diarization failed", env,
		"diarize",
		"--audio", audio.Ref,
		"--device", e.settings.Device,
		"--out", out,
	)
	if err != nil {
		return Diarization{}, err
	}
	return Diarization{Ref: out}, nil
}

// AssignSpeakers merges diarization output into the aligned segments.
func (e *ExecEngine) AssignSpeakers(ctx context.Context, workDir string, diarization Diarization, segments Segments) (Result, error) {
	out := filepath.Join(workDir, "result.json")
	err := e.run(ctx, StageAssignSpeakers, "speaker assignment failed", nil,
		"assign-speakers",
		"--diarization", diarization.Ref,
		"--segments", segments.Ref,
		"--out", out,
	)
	if err != nil {
		return Result{}, err
	}
	return Result{Path: out}, nil
}

// run invokes one driver subcommand and maps failure to a StageError.
func (e *ExecEngine) run(ctx context.Context, stage, message string, env []string, args ...string) error {
	result, err := e.runner.Run(ctx, env, e.bin, args...)
	if err != nil {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		if detail != "" {
			message = fmt.Sprintf("%s (exit=%d): %s", message, result.ExitCode, detail)
		}
		return &StageError{Stage: stage, Message: message, Err: err}
	}
	return nil
}

// NewExecEngineForTests constructs an engine with an injectable runner.
func NewExecEngineForTests(bin string, settings Settings, runner commandRunner) *ExecEngine {
	return &ExecEngine{bin: bin, settings: settings, runner: runner}
}
