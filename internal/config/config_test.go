package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
device:
  queues: 2
  deferred_contexts: 4
replay:
  scenario: copy-dispatch
  timeout: 250ms
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Queues != 2 || cfg.Device.DeferredContexts != 4 {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Device.Backend != "trace" || cfg.Device.MemoryBudgetMB != 256 {
		t.Errorf("defaults lost: %+v", cfg.Device)
	}
	if cfg.Replay.Scenario != "copy-dispatch" || cfg.Replay.Timeout != 250*time.Millisecond {
		t.Errorf("replay = %+v", cfg.Replay)
	}
	if cfg.Logging.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.Logging.SlogLevel())
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "device:\n  queues: 2\n")
	t.Setenv("CMDEMU_DEVICE_QUEUES", "3")
	t.Setenv("CMDEMU_REPLAY_SCENARIO", "round-trip")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Queues != 3 {
		t.Errorf("queues = %d, want env override 3", cfg.Device.Queues)
	}
	if cfg.Replay.Scenario != "round-trip" {
		t.Errorf("scenario = %q", cfg.Replay.Scenario)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"queues", "device:\n  queues: 0\n", "device.queues"},
		{"budget", "device:\n  memory_budget_mb: -1\n", "memory_budget_mb"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"format", "logging:\n  format: xml\n", "logging.format"},
		{"repeat", "replay:\n  repeat: 0\n", "replay.repeat"},
		{"syntax", "device: [\n", "reading config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file accepted")
	}
}
