package device

import (
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
)

// A CaptureSource that produces silence at real-time speed.
//
// A minimal example of the architecture of a CaptureSource, useful in testing
// and for dry runs without a microphone.
type DummyCaptureSource struct {
	bytesRead atomic.Int64
}

func NewDummyCaptureSource() *DummyCaptureSource {
	return &DummyCaptureSource{}
}

func (d *DummyCaptureSource) OpenCapture(format audiodevice.AudioFormat) (audiodevice.CaptureStream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &dummyCaptureStream{
		source: d,
		pacer:  newPacer(format),
		align:  format.BlockAlign(),
	}, nil
}

// Total bytes handed out by all streams of this source.
func (d *DummyCaptureSource) BytesRead() int64 {
	return d.bytesRead.Load()
}

type dummyCaptureStream struct {
	source *DummyCaptureSource
	pacer  *pacer
	align  int
	closed atomic.Bool
}

func (s *dummyCaptureStream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, audiodevice.ErrStreamClosed
	}
	n := len(p) - len(p)%s.align
	clear(p[:n])
	s.pacer.wait(n)
	s.source.bytesRead.Add(int64(n))
	return n, nil
}

func (s *dummyCaptureStream) Stop() error {
	return nil
}

func (s *dummyCaptureStream) Close() error {
	s.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------------

// A PlaybackSink that consumes all audio at real-time speed without any further actions.
//
// A minimal example of the architecture of a PlaybackSink, useful in testing.
type DummyPlaybackSink struct {
	bytesWritten atomic.Int64
}

func NewDummyPlaybackSink() *DummyPlaybackSink {
	return &DummyPlaybackSink{}
}

func (d *DummyPlaybackSink) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &dummyPlaybackStream{
		sink:  d,
		pacer: newPacer(format),
	}, nil
}

// Total bytes consumed by all streams of this sink.
func (d *DummyPlaybackSink) BytesWritten() int64 {
	return d.bytesWritten.Load()
}

type dummyPlaybackStream struct {
	sink   *DummyPlaybackSink
	pacer  *pacer
	closed atomic.Bool
}

func (s *dummyPlaybackStream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, audiodevice.ErrStreamClosed
	}
	s.pacer.wait(len(p))
	s.sink.bytesWritten.Add(int64(len(p)))
	return len(p), nil
}

func (s *dummyPlaybackStream) Stop() error {
	return nil
}

func (s *dummyPlaybackStream) Close() error {
	s.closed.Store(true)
	return nil
}
