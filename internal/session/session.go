// Package session runs a duplex sounding session: a sweep is played on a
// PlaybackSink while a CaptureSource is recorded, and the recording is handed
// back to the caller once both ports have been released.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/observe"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/sweep"
	"github.com/google/uuid"
)

const (
	DefaultWriteChunkBytes = 4096
	DefaultReadChunkBytes  = 2048

	// Upper bound for preallocating the capture accumulator.
	maxPreallocatedCaptureBytes = 64 << 20
)

type Options struct {
	// Size of each playback write. Rounded down to whole samples.
	// Default: DefaultWriteChunkBytes.
	WriteChunkBytes int

	// Size of each capture read. Default: DefaultReadChunkBytes.
	ReadChunkBytes int

	// How long capture keeps running after playback has been released,
	// to record reflections that arrive after the last emitted sample.
	// Skipped when the session ends on a port failure.
	CaptureTail time.Duration

	// Default: observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Default: slog.Default().
	Logger *slog.Logger
}

// The result of a session. Ownership of Data passes to the caller.
type Capture struct {
	ID     uuid.UUID
	Spec   sweep.SweepSpec
	Format audiodevice.AudioFormat

	// Captured PCM bytes in Format, in the order they were read.
	Data []byte

	StartedAt time.Time
	Elapsed   time.Duration

	BytesPlayed int64
	// Number of times the sweep was played to the end.
	SweepLoops int
}

// Duration of the captured audio.
func (c *Capture) AudioDuration() time.Duration {
	return c.Format.Duration(len(c.Data))
}

// A DuplexSession plays a sweep through a PlaybackSink while recording a
// CaptureSource, one session at a time.
//
// Start, Stop, Wait and State may be called from any goroutine.
type DuplexSession struct {
	logger  *slog.Logger
	uuid    uuid.UUID
	metrics *observe.Metrics

	sink   audiodevice.PlaybackSink
	source audiodevice.CaptureSource
	opts   Options

	state atomic.Int32

	// The most recent run, until its result is collected by Wait.
	run      *activeRun
	runMutex sync.Mutex
}

// Create a new DuplexSession over the given ports. The ports are only
// opened when a session starts.
func NewDuplexSession(
	sink audiodevice.PlaybackSink,
	source audiodevice.CaptureSource,
	opts Options,
) *DuplexSession {
	if opts.WriteChunkBytes <= 0 {
		opts.WriteChunkBytes = DefaultWriteChunkBytes
	}
	opts.WriteChunkBytes = frame.AlignChunk(opts.WriteChunkBytes)
	if opts.ReadChunkBytes <= 0 {
		opts.ReadChunkBytes = DefaultReadChunkBytes
	}
	opts.ReadChunkBytes = frame.AlignChunk(opts.ReadChunkBytes)
	opts.CaptureTail = max(opts.CaptureTail, 0)
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	uuid := uuid.New()
	return &DuplexSession{
		logger:  opts.Logger.With("duplex session uuid", uuid),
		uuid:    uuid,
		metrics: opts.Metrics,
		sink:    sink,
		source:  source,
		opts:    opts,
	}
}

func (s *DuplexSession) State() State {
	return State(s.state.Load())
}

// Open the ports and start playing and recording in the background.
//
// Start while the session is not Idle does nothing and returns nil.
// An invalid spec is reported as ErrEncodingFailure and a port that cannot
// be opened as a *PortError of kind ErrPortOpenFailure; in both cases the
// session stays Idle with no port left open.
//
// The session runs until the stop condition is met, Stop is called or ctx
// is cancelled. Collect the result with Wait before starting again; a result
// still uncollected when the next run starts is discarded with a warning.
func (s *DuplexSession) Start(ctx context.Context, spec sweep.SweepSpec, stop StopCondition) error {
	_, err := s.begin(ctx, spec, stop)
	if errors.Is(err, ErrSessionActive) {
		s.logger.Debug("start ignored, session already active", "state", s.State())
		return nil
	}
	return err
}

// Run a complete session and block until both ports are released.
//
// On a port failure mid-session the partial capture is returned together
// with the error. Returns ErrSessionActive if the session is not Idle.
func (s *DuplexSession) Run(ctx context.Context, spec sweep.SweepSpec, stop StopCondition) (*Capture, error) {
	r, err := s.begin(ctx, spec, stop)
	if err != nil {
		return nil, err
	}
	<-r.done
	return s.collect(r)
}

// Request the running session to stop and block until it has shut down.
// Returns the error the session ended with, if any.
//
// Stop while the session is not Running or Stopping does nothing.
func (s *DuplexSession) Stop() error {
	if state := s.State(); state != Running && state != Stopping {
		return nil
	}
	s.runMutex.Lock()
	r := s.run
	s.runMutex.Unlock()
	if r == nil {
		return nil
	}

	r.ctxCancelFunc()
	<-r.done
	return r.err
}

// Block until the session started by Start has shut down and hand over its
// capture. The result is handed over once; the session keeps no reference
// to it afterwards.
//
// Returns ErrNoSession if there is nothing to collect, or ctx.Err() if ctx
// ends first. In the latter case the session keeps running.
func (s *DuplexSession) Wait(ctx context.Context) (*Capture, error) {
	s.runMutex.Lock()
	r := s.run
	s.runMutex.Unlock()
	if r == nil {
		return nil, ErrNoSession
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.collect(r)
}

func (s *DuplexSession) collect(r *activeRun) (*Capture, error) {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.run == r {
		s.run = nil
	}

	capture := r.result
	r.result = nil
	return capture, r.err
}

// --------------------------------------------------------------------------------
// Start-up

func (s *DuplexSession) begin(ctx context.Context, spec sweep.SweepSpec, stop StopCondition) (*activeRun, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		return nil, ErrSessionActive
	}

	r, err := s.open(ctx, spec, stop)
	if err != nil {
		s.state.Store(int32(Idle))
		return nil, err
	}

	s.runMutex.Lock()
	if prev := s.run; prev != nil {
		// Only reachable once prev has returned to Idle, so its result is final.
		s.logger.Warn(
			"discarding uncollected session result",
			"run uuid", prev.id,
			"capturedBytes", len(prev.result.Data),
			"err", prev.err,
		)
	}
	s.run = r
	s.runMutex.Unlock()

	s.state.Store(int32(Running))
	go s.orchestrate(r)
	return r, nil
}

// Generate the sweep and open capture, then playback.
// On failure every port opened so far is released.
func (s *DuplexSession) open(ctx context.Context, spec sweep.SweepSpec, stop StopCondition) (*activeRun, error) {
	samples, err := sweep.Generate(spec)
	if err != nil {
		s.logger.Error("could not generate sweep", "spec", spec, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	looper, err := frame.NewChunkLooper(frame.Encode(samples), s.opts.WriteChunkBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}

	format := audiodevice.MonoPCM16(spec.SampleRate)
	id := uuid.New()
	logger := s.logger.With("run uuid", id)

	captureStream, err := s.source.OpenCapture(format)
	if err != nil {
		logger.Error("could not open capture", "err", err)
		s.metrics.RecordPortFailure(ctx, string(PortCapture), OpOpen)
		return nil, newPortError(ErrPortOpenFailure, PortCapture, OpOpen, err)
	}

	playbackStream, err := s.sink.OpenPlayback(format)
	if err != nil {
		logger.Error("could not open playback", "err", err)
		s.metrics.RecordPortFailure(ctx, string(PortPlayback), OpOpen)
		openErr := newPortError(ErrPortOpenFailure, PortPlayback, OpOpen, err)
		if releaseErr := releaseStream(PortCapture, captureStream); releaseErr != nil {
			logger.Error("could not release capture", "err", releaseErr)
			return nil, errors.Join(openErr, releaseErr)
		}
		return nil, openErr
	}

	startedAt := time.Now()
	var runCtx context.Context
	var cancel context.CancelFunc
	if stop.Timed() {
		runCtx, cancel = context.WithTimeout(ctx, stop.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	logger.Info(
		"session started",
		"startHz", spec.StartHz,
		"endHz", spec.EndHz,
		"sweepSeconds", spec.DurationSeconds,
		"sampleRate", spec.SampleRate,
		"duration", stop.Duration,
	)

	return &activeRun{
		id:             id,
		logger:         logger,
		spec:           spec,
		format:         format,
		stop:           stop,
		playbackStream: playbackStream,
		captureStream:  captureStream,
		looper:         looper,
		ctx:            runCtx,
		ctxCancelFunc:  cancel,
		startedAt:      startedAt,
		done:           make(chan struct{}),
	}, nil
}
