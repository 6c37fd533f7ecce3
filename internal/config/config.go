// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds everything the service needs at startup.
type Config struct {
	Addr        string
	DataDir     string
	DBPath      string
	WhisperXBin string
	Device      string
	ComputeType string
	Language    string
	BatchSize   int
	HFToken     string
	QueueSize   int
}

// Defaults returns baseline configuration for a local deployment.
func Defaults() Config {
	dataDir := "data"
	return Config{
		Addr:        ":5050",
		DataDir:     dataDir,
		DBPath:      filepath.Join(dataDir, "whisperx.sqlite"),
		WhisperXBin: "whisperx",
		Device:      "cuda",
		ComputeType: "float16",
		Language:    "en",
		BatchSize:   16,
		QueueSize:   16,
	}
}

// FromEnv applies TRANSCRIBED_* overrides (plus HF_TOKEN) on top of
// the defaults.
func FromEnv() Config {
	cfg := Defaults()

	if v := os.Getenv("TRANSCRIBED_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("TRANSCRIBED_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.DBPath = filepath.Join(v, "whisperx.sqlite")
	}
	if v := os.Getenv("TRANSCRIBED_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TRANSCRIBED_WHISPERX_BIN"); v != "" {
		cfg.WhisperXBin = v
	}
	if v := os.Getenv("TRANSCRIBED_DEVICE"); v != "" {
		cfg.Device = v
	}
	if v := os.Getenv("TRANSCRIBED_COMPUTE_TYPE"); v != "" {
		cfg.ComputeType = v
	}
	if v := os.Getenv("TRANSCRIBED_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("TRANSCRIBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("TRANSCRIBED_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueSize = n
		}
	}
	cfg.HFToken = os.Getenv("HF_TOKEN")

	return cfg
}
