package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/observe"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/sweep"
	"github.com/google/uuid"
)

// One session from open ports to released ports.
type activeRun struct {
	id     uuid.UUID
	logger *slog.Logger

	spec   sweep.SweepSpec
	format audiodevice.AudioFormat
	stop   StopCondition

	playbackStream audiodevice.PlaybackStream
	captureStream  audiodevice.CaptureStream
	looper         *frame.ChunkLooper

	// Cancelled by Stop, by the stop condition timer, or by the caller's context.
	ctx           context.Context
	ctxCancelFunc context.CancelFunc

	releasePlaybackOnce sync.Once
	releasePlaybackErr  error
	releaseCaptureOnce  sync.Once
	releaseCaptureErr   error

	startedAt time.Time

	// Owned by the writer goroutine until it is joined.
	bytesPlayed int64

	// Closed once both ports are released. result and err are set before.
	done   chan struct{}
	result *Capture
	err    error
}

type readResult struct {
	data []byte
	err  error
}

// Run both loops until the session ends, then shut down in order:
// the writer is joined before playback is released, and capture is only
// released after the reader is joined.
func (s *DuplexSession) orchestrate(r *activeRun) {
	ctx := context.WithoutCancel(r.ctx)
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)
	defer r.ctxCancelFunc()

	writeCtx, cancelWrite := context.WithCancel(r.ctx)
	defer cancelWrite()
	// The reader outlives the run context by the capture tail.
	readCtx, cancelRead := context.WithCancel(context.Background())
	defer cancelRead()

	writerDone := make(chan error, 1)
	readerDone := make(chan readResult, 1)
	go func() {
		writerDone <- r.writeLoop(writeCtx)
	}()
	go func() {
		data, err := r.readLoop(readCtx, s.opts.ReadChunkBytes, r.preallocate(s.opts.CaptureTail))
		readerDone <- readResult{data, err}
	}()

	var (
		writeErr, readErr          error
		data                       []byte
		writerJoined, readerJoined bool
	)
	select {
	case <-r.ctx.Done():
		r.logger.Debug("stop requested", "cause", context.Cause(r.ctx))
	case writeErr = <-writerDone:
		writerJoined = true
	case res := <-readerDone:
		data, readErr = res.data, res.err
		readerJoined = true
	}
	s.state.Store(int32(Stopping))

	// Playback side first.
	cancelWrite()
	if !writerJoined {
		writeErr = <-writerDone
	}
	playbackErr := r.releasePlayback()

	if !readerJoined && writeErr == nil && s.opts.CaptureTail > 0 {
		tail := time.NewTimer(s.opts.CaptureTail)
		select {
		case <-tail.C:
		case res := <-readerDone:
			data, readErr = res.data, res.err
			readerJoined = true
		}
		tail.Stop()
	}

	cancelRead()
	if !readerJoined {
		res := <-readerDone
		data, readErr = res.data, res.err
	}
	captureErr := r.releaseCapture()

	elapsed := time.Since(r.startedAt)
	r.err = errors.Join(writeErr, readErr, playbackErr, captureErr)
	r.result = &Capture{
		ID:          r.id,
		Spec:        r.spec,
		Format:      r.format,
		Data:        data,
		StartedAt:   r.startedAt,
		Elapsed:     elapsed,
		BytesPlayed: r.bytesPlayed,
		SweepLoops:  r.looper.Loops(),
	}

	s.metrics.BytesPlayed.Add(ctx, r.bytesPlayed)
	s.metrics.BytesCaptured.Add(ctx, int64(len(data)))
	for _, portErr := range portErrors(r.err, nil) {
		s.metrics.RecordPortFailure(ctx, string(portErr.Port), portErr.Op)
	}
	if r.err != nil {
		s.metrics.RecordSession(ctx, observe.StatusFailed, elapsed)
		r.logger.Error(
			"session ended with error",
			"bytesPlayed", r.bytesPlayed,
			"bytesCaptured", len(data),
			"elapsed", elapsed,
			"err", r.err,
		)
	} else {
		s.metrics.RecordSession(ctx, observe.StatusOK, elapsed)
		r.logger.Info(
			"session finished",
			"bytesPlayed", r.bytesPlayed,
			"bytesCaptured", len(data),
			"sweepLoops", r.looper.Loops(),
			"elapsed", elapsed,
		)
	}

	s.state.Store(int32(Idle))
	close(r.done)
}

// Capacity for the expected amount of captured audio.
func (r *activeRun) preallocate(tail time.Duration) []byte {
	expected := r.stop.Duration
	if !r.stop.Timed() {
		expected = time.Duration(r.spec.DurationSeconds) * time.Second
	}
	expected += tail
	n := int64(expected.Seconds() * float64(r.format.ByteRate()))
	return make([]byte, 0, min(max(n, 0), maxPreallocatedCaptureBytes))
}

// --------------------------------------------------------------------------------
// Loops

// Play the sweep over and over until ctx is cancelled.
func (r *activeRun) writeLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		chunk := r.looper.Next()
		for len(chunk) > 0 {
			n, err := r.playbackStream.Write(chunk)
			r.bytesPlayed += int64(n)
			if err != nil {
				r.logger.Error("could not write to playback", "err", err)
				return newPortError(ErrPortIOFailure, PortPlayback, OpWrite, err)
			}
			if n == 0 {
				return newPortError(ErrPortIOFailure, PortPlayback, OpWrite, io.ErrShortWrite)
			}
			chunk = chunk[n:]
		}
	}
	return nil
}

// Append captured audio to acc until ctx is cancelled or the source ends.
// The returned slice holds everything read so far, also on error.
func (r *activeRun) readLoop(ctx context.Context, chunkBytes int, acc []byte) ([]byte, error) {
	buf := make([]byte, chunkBytes)
	for ctx.Err() == nil {
		n, err := r.captureStream.Read(buf)
		acc = append(acc, buf[:n]...)
		if errors.Is(err, io.EOF) {
			r.logger.Debug("capture source ended")
			return acc, nil
		}
		if err != nil {
			r.logger.Error("could not read from capture", "err", err)
			return acc, newPortError(ErrPortIOFailure, PortCapture, OpRead, err)
		}
	}
	return acc, nil
}

// --------------------------------------------------------------------------------
// Release

func (r *activeRun) releasePlayback() error {
	r.releasePlaybackOnce.Do(func() {
		r.releasePlaybackErr = releaseStream(PortPlayback, r.playbackStream)
	})
	return r.releasePlaybackErr
}

func (r *activeRun) releaseCapture() error {
	r.releaseCaptureOnce.Do(func() {
		r.releaseCaptureErr = releaseStream(PortCapture, r.captureStream)
	})
	return r.releaseCaptureErr
}

type stoppableStream interface {
	Stop() error
	Close() error
}

// Stop, then close a stream. Close is attempted even if Stop fails.
func releaseStream(port Port, stream stoppableStream) error {
	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, newPortError(ErrPortIOFailure, port, OpStop, err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, newPortError(ErrPortIOFailure, port, OpClose, err))
	}
	return errors.Join(errs...)
}

// All PortErrors in an error tree, without descending into them.
func portErrors(err error, out []*PortError) []*PortError {
	switch e := err.(type) {
	case nil:
	case *PortError:
		out = append(out, e)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			out = portErrors(inner, out)
		}
	case interface{ Unwrap() error }:
		out = portErrors(e.Unwrap(), out)
	}
	return out
}
