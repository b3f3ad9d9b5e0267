package utils

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigureDefaultLoggerLevels(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	tests := []struct {
		level   string
		enabled slog.Level
		wantErr error
	}{
		{"error", slog.LevelError, nil},
		{"warn", slog.LevelWarn, nil},
		{"info", slog.LevelInfo, nil},
		{"debug", slog.LevelDebug, nil},
		{"verbose", 0, ErrUnexpectedLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			closer, err := ConfigureDefaultLogger(tt.level, "", slog.HandlerOptions{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ConfigureDefaultLogger(%q) error = %v, want %v", tt.level, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if closer != nil {
				t.Error("stdout logger returned a closer")
			}
			if !slog.Default().Enabled(t.Context(), tt.enabled) {
				t.Errorf("level %v disabled", tt.enabled)
			}
			if slog.Default().Enabled(t.Context(), tt.enabled-1) {
				t.Errorf("level below %v enabled", tt.enabled)
			}
		})
	}
}

func TestConfigureDefaultLoggerNone(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	closer, err := ConfigureDefaultLogger("none", "", slog.HandlerOptions{})
	if err != nil || closer != nil {
		t.Fatalf("ConfigureDefaultLogger(none) = %v, %v", closer, err)
	}
	if slog.Default().Enabled(t.Context(), slog.LevelError) {
		t.Error("logging still enabled")
	}
}

func TestConfigureDefaultLoggerFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	path := filepath.Join(t.TempDir(), "chirpsounder.log")
	closer, err := ConfigureDefaultLogger("info", path, slog.HandlerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	slog.Info("session finished", "bytesCaptured", 2048)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log file is not JSON: %v\n%s", err, data)
	}
	if record["msg"] != "session finished" || record["bytesCaptured"] != float64(2048) {
		t.Errorf("log record = %v", record)
	}
}
