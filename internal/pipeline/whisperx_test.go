package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeRunner records invocations and replays injected outcomes.
type fakeRunner struct {
	calls []recordedCall
	run   func(ctx context.Context, env []string, name string, args ...string) (commandResult, error)
}

type recordedCall struct {
	name string
	env  []string
	args []string
}

// Run records the call and delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, env []string, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, recordedCall{name: name, env: env, args: args})
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, env, name, args...)
}

// argValue returns the value following a flag, or "".
func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func testSettings() Settings {
	return Settings{
		Device:      "cuda",
		ComputeType: "float16",
		Language:    "en",
		BatchSize:   16,
		HFToken:     "hf_secret",
	}
}

// TestLoadModelArgs checks the load-model driver invocation.
func TestLoadModelArgs(t *testing.T) {
	runner := &fakeRunner{}
	engine := NewExecEngineForTests("whisperx", testSettings(), runner)

	model, err := engine.LoadModel(context.Background(), "/work")
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if model.Ref == "" {
		t.Fatal("expected non-empty model ref")
	}

	call := runner.calls[0]
	if call.name != "whisperx" || call.args[0] != "load-model" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if argValue(call.args, "--device") != "cuda" {
		t.Fatalf("device arg missing: %v", call.args)
	}
	if argValue(call.args, "--compute-type") != "float16" {
		t.Fatalf("compute-type arg missing: %v", call.args)
	}
}

// TestTranscribeArgs checks batch size and handle threading.
func TestTranscribeArgs(t *testing.T) {
	runner := &fakeRunner{}
	engine := NewExecEngineForTests("whisperx", testSettings(), runner)

	segments, err := engine.Transcribe(context.Background(), "/work",
		Model{Ref: "/work/model.ref"}, Audio{Ref: "/work/audio.ref"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !strings.HasSuffix(segments.Ref, "segments.json") {
		t.Fatalf("segments ref = %q", segments.Ref)
	}

	args := runner.calls[0].args
	if argValue(args, "--model") != "/work/model.ref" {
		t.Fatalf("model handle not threaded: %v", args)
	}
	if argValue(args, "--batch-size") != "16" {
		t.Fatalf("batch size missing: %v", args)
	}
}

// TestDiarizePassesTokenViaEnv checks the token never rides in argv.
func TestDiarizePassesTokenViaEnv(t *testing.T) {
	runner := &fakeRunner{}
	engine := NewExecEngineForTests("whisperx", testSettings(), runner)

	if _, err := engine.Diarize(context.Background(), "/work", Audio{Ref: "/work/audio.ref"}); err != nil {
		t.Fatalf("Diarize: %v", err)
	}

	call := runner.calls[0]
	for _, arg := range call.args {
		if strings.Contains(arg, "hf_secret") {
			t.Fatalf("token leaked into argv: %v", call.args)
		}
	}
	found := false
	for _, kv := range call.env {
		if kv == "HF_TOKEN=hf_secret" {
			found = true
		}
	}
	if !found {
		t.Fatalf("token not in env: %v", call.env)
	}
}

// TestStageErrorCarriesStageAndOutput checks failure mapping.
func TestStageErrorCarriesStageAndOutput(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, env []string, name string, args ...string) (commandResult, error) {
			return commandResult{Stderr: "CUDA out of memory", ExitCode: 1}, errors.New("exit status 1")
		},
	}
	engine := NewExecEngineForTests("whisperx", testSettings(), runner)

	_, err := engine.Diarize(context.Background(), "/work", Audio{Ref: "a"})
	if err == nil {
		t.Fatal("expected error")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if stageErr.Stage != StageDiarize {
		t.Fatalf("stage = %q, want %q", stageErr.Stage, StageDiarize)
	}
	if !strings.Contains(stageErr.Error(), "CUDA out of memory") {
		t.Fatalf("error lost driver output: %v", stageErr)
	}
}

// TestAlignThreadsAllHandles checks the widest stage signature.
func TestAlignThreadsAllHandles(t *testing.T) {
	runner := &fakeRunner{}
	engine := NewExecEngineForTests("whisperx", testSettings(), runner)

	_, err := engine.Align(context.Background(), "/work",
		Segments{Ref: "s"}, AlignModel{Ref: "m", Metadata: "md"}, Audio{Ref: "a"})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}

	args := runner.calls[0].args
	for flag, want := range map[string]string{
		"--segments":    "s",
		"--align-model": "m",
		"--metadata":    "md",
		"--audio":       "a",
	} {
		if argValue(args, flag) != want {
			t.Fatalf("%s = %q, want %q (args %v)", flag, argValue(args, flag), want, args)
		}
	}
}
