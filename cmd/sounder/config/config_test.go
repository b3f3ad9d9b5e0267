package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/sweep"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/wavwriter"
	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	want := sweep.SweepSpec{StartHz: 18000, EndHz: 20000, DurationSeconds: 2, SampleRate: 44100}
	if got := SweepSpec(); got != want {
		t.Errorf("SweepSpec() = %+v, want %+v", got, want)
	}

	cfg := SounderConfig()
	if cfg.Stop != session.StopAfter(10*time.Second) {
		t.Errorf("Stop = %+v, want 10s", cfg.Stop)
	}
	if cfg.Cycles != 1 || cfg.Prefix != "chirp_reflection" || cfg.Mode != wavwriter.ModeWAV {
		t.Errorf("SounderConfig() = %+v", cfg)
	}

	opts := SessionOptions()
	if opts.CaptureTail != 200*time.Millisecond || opts.WriteChunkBytes != 4096 || opts.ReadChunkBytes != 2048 {
		t.Errorf("SessionOptions() = %+v", opts)
	}
}

func TestLoadConfigFile(t *testing.T) {
	viper.Reset()
	LoadConfig(writeConfig(t, `
sweep:
  starthz: 400
  endhz: 4000
session:
  durationseconds: 0
cycles:
  count: 5
  intervalseconds: 1.5
output:
  mode: pcm
  prefix: lab
capture:
  backend: loopback
playback:
  backend: loopback
`))

	if got := SweepSpec(); got.StartHz != 400 || got.EndHz != 4000 || got.SampleRate != 44100 {
		t.Errorf("SweepSpec() = %+v", got)
	}
	cfg := SounderConfig()
	if cfg.Stop.Timed() {
		t.Errorf("Stop = %+v, want stop on signal", cfg.Stop)
	}
	if cfg.Cycles != 5 || cfg.Interval != 1500*time.Millisecond || cfg.Mode != wavwriter.ModeRawPCM || cfg.Prefix != "lab" {
		t.Errorf("SounderConfig() = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr bool
	}{
		{"defaults", "", nil, false},
		{"zero sample rate", "sweep.samplerate", 0, true},
		{"negative frequency", "sweep.starthz", -5.0, true},
		{"negative duration", "session.durationseconds", -1, true},
		{"negative tail", "session.tailmilliseconds", -1, true},
		{"unknown mode", "output.mode", "flac", true},
		{"unknown capture backend", "capture.backend", "alsa", true},
		{"unknown playback backend", "playback.backend", "jack", true},
		{"file capture without file", "capture.backend", "file", true},
		{"oto playback", "playback.backend", "oto", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			if tt.key != "" {
				viper.Set(tt.key, tt.value)
			}
			if err := Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigPanicsOnInvalidValues(t *testing.T) {
	viper.Reset()
	defer func() {
		if recover() == nil {
			t.Error("LoadConfig() did not panic on an invalid config")
		}
	}()
	LoadConfig(writeConfig(t, "sweep:\n  samplerate: -1\n"))
}
