// Package worker drives queued jobs through the transcription
// pipeline, one job at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"podcast-transcriber/internal/domain"
	"podcast-transcriber/internal/pipeline"
)

// Lifecycle is the slice of the job manager the coordinator reports
// through.
type Lifecycle interface {
	Begin(ctx context.Context, id string) (domain.Job, error)
	Complete(ctx context.Context, id string, progress int) error
	Fail(ctx context.Context, id string, cause error) error
	LogAndProgress(ctx context.Context, id, message string, delta int) error
}

// Blobs resolves stored audio and receives the result artifact.
type Blobs interface {
	AudioPath(jobID string) (string, error)
	WorkDir(jobID string) (string, error)
	SaveResult(jobID string, data []byte) error
	ResultPath(jobID string) string
}

// Coordinator owns the single worker goroutine. One job is in flight
// at any time; everything else waits in the queue.
type Coordinator struct {
	queue     *Queue
	lifecycle Lifecycle
	engine    pipeline.Engine
	blobs     Blobs
	readFile  func(name string) ([]byte, error)
}

// NewCoordinator wires the worker to its collaborators.
func NewCoordinator(queue *Queue, lifecycle Lifecycle, engine pipeline.Engine, blobs Blobs) *Coordinator {
	return &Coordinator{
		queue:     queue,
		lifecycle: lifecycle,
		engine:    engine,
		blobs:     blobs,
		readFile:  os.ReadFile,
	}
}

// Run pulls job ids until ctx is cancelled. It is meant to be run in
// exactly one goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	log.Printf("[worker] started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[worker] shutting down")
			return
		case jobID := <-c.queue.ch:
			log.Printf("[worker] processing job %s", jobID)
			c.process(ctx, jobID)
		}
	}
}

// process runs one job through the fixed stage order. Stage failures
// land the job in FAILED with the stage name in its log; retry
// restarts from the first stage.
func (c *Coordinator) process(ctx context.Context, jobID string) {
	_, err := c.lifecycle.Begin(ctx, jobID)
	if err != nil {
		log.Printf("[worker] job %s not started: %v", jobID, err)
		return
	}

	audioPath, err := c.blobs.AudioPath(jobID)
	if err != nil {
		c.fail(jobID, &pipeline.StageError{Stage: pipeline.StageLoadAudio, Message: "uploaded audio missing", Err: err})
		return
	}
	workDir, err := c.blobs.WorkDir(jobID)
	if err != nil {
		c.fail(jobID, &pipeline.StageError{Stage: pipeline.StageLoadModel, Message: "cannot create work directory", Err: err})
		return
	}

	var (
		model       pipeline.Model
		audio       pipeline.Audio
		segments    pipeline.Segments
		diarization pipeline.Diarization
		result      pipeline.Result
	)

	stages := []struct {
		name   string
		banner string
		run    func(ctx context.Context) error
	}{
		{pipeline.StageLoadModel, "Loading model", func(ctx context.Context) error {
			var err error
			model, err = c.engine.LoadModel(ctx, workDir)
			return err
		}},
		{pipeline.StageLoadAudio, "Loading audio file", func(ctx context.Context) error {
			var err error
			audio, err = c.engine.LoadAudio(ctx, workDir, audioPath)
			return err
		}},
		{pipeline.StageTranscribe, "Transcribing", func(ctx context.Context) error {
			var err error
			segments, err = c.engine.Transcribe(ctx, workDir, model, audio)
			return err
		}},
		{pipeline.StageAlign, "Aligning timestamps", func(ctx context.Context) error {
			alignModel, err := c.engine.LoadAlignModel(ctx, workDir)
			if err != nil {
				return err
			}
			segments, err = c.engine.Align(ctx, workDir, segments, alignModel, audio)
			return err
		}},
		{pipeline.StageDiarize, "Diarizing", func(ctx context.Context) error {
			var err error
			diarization, err = c.engine.Diarize(ctx, workDir, audio)
			return err
		}},
		{pipeline.StageAssignSpeakers, "Assigning word speakers", func(ctx context.Context) error {
			var err error
			result, err = c.engine.AssignSpeakers(ctx, workDir, diarization, segments)
			return err
		}},
		{pipeline.StagePersistResult, "", func(ctx context.Context) error {
			data, err := c.readFile(result.Path)
			if err != nil {
				return fmt.Errorf("read result artifact: %w", err)
			}
			return c.blobs.SaveResult(jobID, data)
		}},
	}

	for _, stage := range stages {
		// Cancellation is honored between stages, never mid-stage.
		if err := ctx.Err(); err != nil {
			c.fail(jobID, fmt.Errorf("%s: cancelled before stage: %w", stage.name, err))
			return
		}

		banner := stage.banner
		if banner == "" {
			banner = "Saving output to " + c.blobs.ResultPath(jobID)
		}
		if err := c.lifecycle.LogAndProgress(ctx, jobID, banner, 1); err != nil {
			log.Printf("[worker] job %s: record stage %s: %v", jobID, stage.name, err)
		}

		if err := stage.run(ctx); err != nil {
			var stageErr *pipeline.StageError
			if !errors.As(err, &stageErr) {
				err = &pipeline.StageError{Stage: stage.name, Message: "stage failed", Err: err}
			}
			c.fail(jobID, err)
			return
		}
	}

	if err := c.lifecycle.Complete(context.Background(), jobID, len(stages)); err != nil {
		log.Printf("[worker] job %s: mark done: %v", jobID, err)
		return
	}
	log.Printf("[worker] job %s done", jobID)
}

// fail records the failure durably. A background context is used so a
// cancelled run can still write its final state.
func (c *Coordinator) fail(jobID string, cause error) {
	log.Printf("[worker] job %s failed: %v", jobID, cause)
	if err := c.lifecycle.Fail(context.Background(), jobID, cause); err != nil {
		log.Printf("[worker] job %s: mark failed: %v", jobID, err)
	}
}

// NewCoordinatorForTests constructs a coordinator with an injectable
// result reader.
func NewCoordinatorForTests(queue *Queue, lifecycle Lifecycle, engine pipeline.Engine, blobs Blobs, readFile func(string) ([]byte, error)) *Coordinator {
	return &Coordinator{
		queue:     queue,
		lifecycle: lifecycle,
		engine:    engine,
		blobs:     blobs,
		readFile:  readFile,
	}
}
