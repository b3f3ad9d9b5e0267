// Package sounder repeats duplex sounding sessions on a schedule and persists
// every capture to disk.
package sounder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/observe"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/sweep"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/wavwriter"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const DefaultPrefix = "chirp_reflection"

var (
	ErrAllCyclesFailed = errors.New("every sounding cycle failed")
	ErrNothingCaptured = errors.New("capture holds no audio")
)

type Config struct {
	Spec sweep.SweepSpec
	Stop session.StopCondition

	// Number of sessions to run. 0 runs until the context is cancelled.
	Cycles int
	// Pause between the end of one session and the start of the next.
	Interval time.Duration

	OutputDir string
	// Default: DefaultPrefix.
	Prefix string
	Mode   wavwriter.OutputMode
}

// Define a Sounder, which runs sessions back to back on one DuplexSession
// and writes each capture to <OutputDir>/<Prefix>_<unix millis>.<wav|pcm>.
type Sounder struct {
	logger  *slog.Logger
	uuid    uuid.UUID
	metrics *observe.Metrics

	duplexSession *session.DuplexSession
	fs            afero.Fs
	config        Config
}

// Create a new Sounder. A nil metrics uses observe.DefaultMetrics().
func NewSounder(
	duplexSession *session.DuplexSession,
	fs afero.Fs,
	config Config,
	metrics *observe.Metrics,
) *Sounder {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	uuid := uuid.New()
	logger := slog.Default().With(
		"sounder uuid", uuid,
	)
	return &Sounder{
		logger:        logger,
		uuid:          uuid,
		metrics:       metrics,
		duplexSession: duplexSession,
		fs:            fs,
		config:        config,
	}
}

// Run the configured number of cycles, or until ctx is cancelled.
//
// A failed cycle is logged and the next one still runs. Whatever a failed
// cycle captured is persisted too. Returns the paths of all written files;
// the error is non-nil only when no cycle succeeded or the output directory
// cannot be created.
func (s *Sounder) Run(ctx context.Context) ([]string, error) {
	if err := s.fs.MkdirAll(s.config.OutputDir, 0755); err != nil {
		s.logger.Error("could not create output directory", "dir", s.config.OutputDir, "err", err)
		return nil, err
	}

	var (
		paths     []string
		succeeded int
		attempted int
		lastErr   error
	)
	for cycle := 1; s.config.Cycles == 0 || cycle <= s.config.Cycles; cycle++ {
		if ctx.Err() != nil {
			break
		}
		if cycle > 1 && !s.pause(ctx) {
			break
		}

		attempted++
		path, err := s.runCycle(ctx, cycle)
		if path != "" {
			paths = append(paths, path)
		}
		if err != nil {
			lastErr = err
			continue
		}
		succeeded++
	}

	s.logger.Info(
		"sounder finished",
		"cycles", attempted,
		"succeeded", succeeded,
		"files", len(paths),
	)
	if attempted > 0 && succeeded == 0 {
		return paths, fmt.Errorf("%w: %w", ErrAllCyclesFailed, lastErr)
	}
	return paths, nil
}

// Wait out the interval. Reports false if ctx ended first.
func (s *Sounder) pause(ctx context.Context) bool {
	if s.config.Interval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sounder) runCycle(ctx context.Context, cycle int) (string, error) {
	s.logger.Debug("starting cycle", "cycle", cycle)

	capture, runErr := s.duplexSession.Run(ctx, s.config.Spec, s.config.Stop)
	if runErr != nil {
		s.logger.Error("sounding cycle failed", "cycle", cycle, "err", runErr)
	}
	if capture == nil || len(capture.Data) == 0 {
		return "", runErr
	}

	path, err := s.Persist(capture)
	if err != nil {
		return "", errors.Join(runErr, err)
	}
	return path, runErr
}

// Write a capture to the output directory in the configured mode.
// Returns the path of the new file.
func (s *Sounder) Persist(capture *session.Capture) (string, error) {
	if len(capture.Data) == 0 {
		return "", ErrNothingCaptured
	}

	path, err := s.freePath(capture.StartedAt)
	if err != nil {
		return "", err
	}

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		s.logger.Error("could not create capture file", "path", path, "err", err)
		return "", err
	}
	n, err := wavwriter.Write(f, capture.Data, capture.Format, s.config.Mode)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.logger.Error("could not write capture file", "path", path, "err", err)
		if removeErr := s.fs.Remove(path); removeErr != nil {
			s.logger.Warn("could not remove incomplete capture file", "path", path, "err", removeErr)
		}
		return "", err
	}

	s.metrics.RecordCaptureFile(context.Background(), s.config.Mode.String())
	s.logger.Info(
		"saved capture",
		"path", path,
		"bytes", n,
		"audio", capture.AudioDuration(),
		"session uuid", capture.ID,
	)
	return path, nil
}

// File name for a capture started at t, with a counter suffix if a file of
// that name already exists.
func (s *Sounder) freePath(t time.Time) (string, error) {
	base := fmt.Sprintf("%s_%d", s.config.Prefix, t.UnixMilli())
	ext := "." + s.config.Mode.Extension()
	path := filepath.Join(s.config.OutputDir, base+ext)
	for i := 1; ; i++ {
		exists, err := afero.Exists(s.fs, path)
		if err != nil {
			return "", err
		}
		if !exists {
			return path, nil
		}
		path = filepath.Join(s.config.OutputDir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}
