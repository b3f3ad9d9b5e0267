package device

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
	"github.com/google/uuid"
)

var errLoopbackFormatMismatch = errors.New("loopback playback and capture formats differ")

// Cap on buffered echo, as a duration of audio. Older audio is dropped beyond this.
const loopbackMaxBuffered = 10 * time.Second

// A simulated acoustic path: a device that is both a PlaybackSink and a CaptureSource.
//
// Audio written to the playback side is scaled by the attenuation and arrives on
// the capture side after the configured delay, like a single reflection off a wall.
// The capture side is clock driven and produces silence whenever no echo is queued,
// as a real microphone would.
//
// Only mono 16-bit PCM is supported.
type LoopbackDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	delay       time.Duration
	attenuation float64

	mu     sync.Mutex
	format audiodevice.AudioFormat
	queue  []byte
}

// Create a new LoopbackDevice.
// attenuation is clamped to [0, 1]; 0 mutes the echo, 1 returns it unchanged.
func NewLoopbackDevice(delay time.Duration, attenuation float64) *LoopbackDevice {
	uuid := uuid.New()
	logger := slog.Default().With(
		"loopback device uuid", uuid,
	)

	return &LoopbackDevice{
		logger:      logger,
		uuid:        uuid,
		delay:       max(delay, 0),
		attenuation: min(max(attenuation, 0), 1),
	}
}

func (d *LoopbackDevice) checkFormat(format audiodevice.AudioFormat) error {
	if err := format.Validate(); err != nil {
		return err
	}
	if format.NumChannels != 1 || format.BitsPerSample != 16 {
		return audiodevice.ErrInvalidFormat
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.format != (audiodevice.AudioFormat{}) && d.format != format {
		return errLoopbackFormatMismatch
	}
	d.format = format
	return nil
}

// --------------------------------------------------------------------------------
// PlaybackSink Interface

func (d *LoopbackDevice) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	if err := d.checkFormat(format); err != nil {
		return nil, err
	}

	// The echo of the first written sample is due after the delay.
	delayBytes := frame.AlignChunk(int(d.delay.Seconds() * float64(format.ByteRate())))
	if d.delay == 0 {
		delayBytes = 0
	}
	d.mu.Lock()
	d.queue = append(d.queue, make([]byte, delayBytes)...)
	d.mu.Unlock()

	d.logger.Debug(
		"opened loopback playback",
		"sampleRate", format.SampleRate,
		"delay", d.delay,
		"attenuation", d.attenuation,
	)
	return &loopbackPlaybackStream{
		device: d,
		pacer:  newPacer(format),
	}, nil
}

type loopbackPlaybackStream struct {
	device  *LoopbackDevice
	pacer   *pacer
	aligner sampleAligner
	closed  bool
}

func (s *loopbackPlaybackStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, audiodevice.ErrStreamClosed
	}
	s.device.echo(s.aligner.feed(p))
	s.pacer.wait(len(p))
	return len(p), nil
}

func (s *loopbackPlaybackStream) Stop() error {
	return nil
}

func (s *loopbackPlaybackStream) Close() error {
	s.closed = true
	return nil
}

// Queue the attenuated copy of p for the capture side.
func (d *LoopbackDevice) echo(p []byte) {
	samples, err := frame.Decode(p)
	if err != nil {
		d.logger.Error("dropping misaligned playback data", "bytes", len(p), "err", err)
		return
	}
	for i, s := range samples {
		samples[i] = int16(math.Round(float64(s) * d.attenuation))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, frame.Encode(samples)...)

	limit := frame.AlignChunk(int(loopbackMaxBuffered.Seconds() * float64(d.format.ByteRate())))
	if overflow := len(d.queue) - limit; overflow > 0 {
		overflow += overflow % 2
		d.logger.Warn("loopback buffer full, dropping oldest audio", "bytes", overflow)
		d.queue = d.queue[overflow:]
	}
}

// --------------------------------------------------------------------------------
// CaptureSource Interface

func (d *LoopbackDevice) OpenCapture(format audiodevice.AudioFormat) (audiodevice.CaptureStream, error) {
	if err := d.checkFormat(format); err != nil {
		return nil, err
	}
	d.logger.Debug("opened loopback capture", "sampleRate", format.SampleRate)
	return &loopbackCaptureStream{
		device: d,
		pacer:  newPacer(format),
	}, nil
}

type loopbackCaptureStream struct {
	device *LoopbackDevice
	pacer  *pacer
	closed bool
}

func (s *loopbackCaptureStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, audiodevice.ErrStreamClosed
	}
	n := len(p) - len(p)%frame.BytesPerSample
	s.pacer.wait(n)

	s.device.mu.Lock()
	queued := copy(p[:n], s.device.queue)
	s.device.queue = s.device.queue[queued:]
	s.device.mu.Unlock()

	clear(p[queued:n])
	return n, nil
}

func (s *loopbackCaptureStream) Stop() error {
	return nil
}

// Close ends the session on the loopback path. Echo still queued is dropped
// so the next session starts with an empty path.
func (s *loopbackCaptureStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.device.mu.Lock()
	dropped := len(s.device.queue)
	s.device.queue = nil
	s.device.mu.Unlock()

	if dropped > 0 {
		s.device.logger.Debug("dropped queued echo on capture close", "bytes", dropped)
	}
	return nil
}
