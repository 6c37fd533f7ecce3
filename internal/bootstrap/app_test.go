package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podcast-transcriber/internal/config"
	"podcast-transcriber/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.DBPath = filepath.Join(cfg.DataDir, "whisperx.sqlite")
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

// TestNewWiresSubmittableApp checks that a freshly built app accepts
// a submission and records it as NEW before any worker runs.
func TestNewWiresSubmittableApp(t *testing.T) {
	app, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.store.Close()

	ctx := context.Background()
	job, err := app.Manager().Submit(ctx, domain.Metadata{
		Title:         "Ep1",
		Podcast:       "Show",
		EpisodeNumber: "1",
	}, strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, logs, err := app.Manager().Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != domain.JobStatusNew {
		t.Fatalf("status = %s, want NEW before dispatch", got.Status)
	}
	if len(logs) != 0 {
		t.Fatalf("unexpected logs before worker ran: %+v", logs)
	}
	if app.queue.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", app.queue.Pending())
	}
}

// TestInitDBCreatesSchema checks the init-db entry point.
func TestInitDBCreatesSchema(t *testing.T) {
	cfg := testConfig(t)
	if err := InitDB(cfg); err != nil {
		t.Fatalf("init db: %v", err)
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}
