package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/sounder"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/sweep"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/wavwriter"
	"github.com/spf13/viper"
)

var (
	CaptureBackends  = []string{"portaudio", "file", "loopback", "dummy"}
	PlaybackBackends = []string{"portaudio", "oto", "file", "loopback", "dummy"}
)

// Read the config file into viper on top of the defaults.
// A missing config file is not an error; an unreadable or invalid one panics.
func LoadConfig(configFilePath string) {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			panic(err)
		}
	}

	if err := Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		panic(err)
	}
}

// Check the values currently held by viper.
func Validate() error {
	if err := SweepSpec().Validate(); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	if viper.GetInt("session.durationseconds") < 0 {
		return errors.New("session.durationseconds must not be negative")
	}
	if viper.GetInt("session.tailmilliseconds") < 0 {
		return errors.New("session.tailmilliseconds must not be negative")
	}
	if viper.GetInt("cycles.count") < 0 {
		return errors.New("cycles.count must not be negative")
	}
	if viper.GetFloat64("cycles.intervalseconds") < 0 {
		return errors.New("cycles.intervalseconds must not be negative")
	}
	if _, err := wavwriter.ParseOutputMode(viper.GetString("output.mode")); err != nil {
		return fmt.Errorf("output.mode: %w", err)
	}
	if b := viper.GetString("capture.backend"); !slices.Contains(CaptureBackends, b) {
		return fmt.Errorf("capture.backend %q is not one of %v", b, CaptureBackends)
	}
	if b := viper.GetString("playback.backend"); !slices.Contains(PlaybackBackends, b) {
		return fmt.Errorf("playback.backend %q is not one of %v", b, PlaybackBackends)
	}
	if viper.GetString("capture.backend") == "file" && viper.GetString("capture.file") == "" {
		return errors.New("capture.backend file requires capture.file")
	}
	if viper.GetString("playback.backend") == "file" && viper.GetString("playback.file") == "" {
		return errors.New("playback.backend file requires playback.file")
	}
	return nil
}

func SweepSpec() sweep.SweepSpec {
	return sweep.SweepSpec{
		StartHz:         viper.GetFloat64("sweep.starthz"),
		EndHz:           viper.GetFloat64("sweep.endhz"),
		DurationSeconds: viper.GetInt("sweep.durationseconds"),
		SampleRate:      viper.GetInt("sweep.samplerate"),
	}
}

// Session options from viper. Metrics and Logger are left for the caller.
func SessionOptions() session.Options {
	return session.Options{
		WriteChunkBytes: viper.GetInt("session.writechunkbytes"),
		ReadChunkBytes:  viper.GetInt("session.readchunkbytes"),
		CaptureTail:     time.Duration(viper.GetInt("session.tailmilliseconds")) * time.Millisecond,
	}
}

func SounderConfig() sounder.Config {
	// Validated in LoadConfig.
	mode, _ := wavwriter.ParseOutputMode(viper.GetString("output.mode"))

	stop := session.StopOnSignal()
	if seconds := viper.GetInt("session.durationseconds"); seconds > 0 {
		stop = session.StopAfter(time.Duration(seconds) * time.Second)
	}

	return sounder.Config{
		Spec:      SweepSpec(),
		Stop:      stop,
		Cycles:    viper.GetInt("cycles.count"),
		Interval:  time.Duration(viper.GetFloat64("cycles.intervalseconds") * float64(time.Second)),
		OutputDir: viper.GetString("output.dir"),
		Prefix:    viper.GetString("output.prefix"),
		Mode:      mode,
	}
}
