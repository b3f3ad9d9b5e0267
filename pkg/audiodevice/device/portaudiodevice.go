package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// Frames per PortAudio buffer when none is configured.
const DefaultFramesPerBuffer = 1024

// Open a blocking PortAudio stream on device (the default device when nil).
// PortAudio reference counts Initialize/Terminate, so every successfully
// opened stream holds one initialization until it is closed.
func openPortAudioStream(
	device *portaudio.DeviceInfo,
	input bool,
	format audiodevice.AudioFormat,
	buf []int16,
) (*portaudio.Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.NumChannels != 1 || format.BitsPerSample != 16 {
		return nil, audiodevice.ErrInvalidFormat
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	var err error
	if device == nil {
		if input {
			device, err = portaudio.DefaultInputDevice()
		} else {
			device, err = portaudio.DefaultOutputDevice()
		}
		if err != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("no default device: %w", err)
		}
	}

	params := portaudio.StreamParameters{
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: len(buf),
	}
	if input {
		params.Input = portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.NumChannels,
			Latency:  device.DefaultLowInputLatency,
		}
	} else {
		params.Output = portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.NumChannels,
			Latency:  device.DefaultLowOutputLatency,
		}
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream on %q: %w", device.Name, err)
	}
	return stream, nil
}

// Stop and close a PortAudio stream exactly once, releasing its initialization.
type portAudioStreamCloser struct {
	stream    *portaudio.Stream
	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
	closeErr  error
}

func (c *portAudioStreamCloser) stop() error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stream.Stop()
	})
	return c.stopErr
}

func (c *portAudioStreamCloser) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.stream.Close(), portaudio.Terminate())
	})
	return c.closeErr
}

// --------------------------------------------------------------------------------
// PortAudioCaptureSource

// PortAudioCaptureSource is a CaptureSource that captures audio from a microphone using PortAudio.
type PortAudioCaptureSource struct {
	logger          *slog.Logger
	uuid            uuid.UUID
	device          *portaudio.DeviceInfo
	framesPerBuffer int
}

// NewPortAudioCaptureSource creates a capture source on the given device (nil for the default input device).
// framesPerBuffer determines the size of audio chunks (typically 512 or 1024).
func NewPortAudioCaptureSource(device *portaudio.DeviceInfo, framesPerBuffer int) *PortAudioCaptureSource {
	uuid := uuid.New()
	logger := slog.Default().With(
		"portaudio capture device uuid", uuid,
	)
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &PortAudioCaptureSource{
		logger:          logger,
		uuid:            uuid,
		device:          device,
		framesPerBuffer: framesPerBuffer,
	}
}

func (d *PortAudioCaptureSource) OpenCapture(format audiodevice.AudioFormat) (audiodevice.CaptureStream, error) {
	buf := make([]int16, d.framesPerBuffer)
	stream, err := openPortAudioStream(d.device, true, format, buf)
	if err != nil {
		d.logger.Error("failed to open capture stream", "err", err)
		return nil, err
	}

	d.logger.Info(
		"portaudio capture started",
		"sampleRate", format.SampleRate,
		"framesPerBuffer", d.framesPerBuffer,
	)
	return &portAudioCaptureStream{
		logger:  d.logger,
		closer:  portAudioStreamCloser{stream: stream},
		buf:     buf,
		encoded: make([]byte, len(buf)*frame.BytesPerSample),
	}, nil
}

type portAudioCaptureStream struct {
	logger *slog.Logger
	closer portAudioStreamCloser

	buf      []int16
	encoded  []byte
	leftover []byte
}

// Read returns buffered bytes from the previous device read first, and
// otherwise blocks for one PortAudio buffer.
func (s *portAudioCaptureStream) Read(p []byte) (int, error) {
	if len(s.leftover) == 0 {
		err := s.closer.stream.Read()
		if errors.Is(err, portaudio.InputOverflowed) {
			s.logger.Warn("input overflow detected")
		} else if err != nil {
			return 0, err
		}
		s.leftover = s.encoded[:frame.EncodeInto(s.encoded, s.buf)]
	}
	n := copy(p, s.leftover)
	s.leftover = s.leftover[n:]
	return n, nil
}

func (s *portAudioCaptureStream) Stop() error {
	return s.closer.stop()
}

func (s *portAudioCaptureStream) Close() error {
	err := s.closer.close()
	s.logger.Info("portaudio capture closed")
	return err
}

// --------------------------------------------------------------------------------
// PortAudioPlaybackSink

// PortAudioPlaybackSink is a PlaybackSink that plays audio to speakers using PortAudio.
type PortAudioPlaybackSink struct {
	logger          *slog.Logger
	uuid            uuid.UUID
	device          *portaudio.DeviceInfo
	framesPerBuffer int
}

// NewPortAudioPlaybackSink creates a playback sink on the given device (nil for the default output device).
func NewPortAudioPlaybackSink(device *portaudio.DeviceInfo, framesPerBuffer int) *PortAudioPlaybackSink {
	uuid := uuid.New()
	logger := slog.Default().With(
		"portaudio playback device uuid", uuid,
	)
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &PortAudioPlaybackSink{
		logger:          logger,
		uuid:            uuid,
		device:          device,
		framesPerBuffer: framesPerBuffer,
	}
}

func (d *PortAudioPlaybackSink) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	buf := make([]int16, d.framesPerBuffer)
	stream, err := openPortAudioStream(d.device, false, format, buf)
	if err != nil {
		d.logger.Error("failed to open playback stream", "err", err)
		return nil, err
	}

	d.logger.Info(
		"portaudio playback started",
		"sampleRate", format.SampleRate,
		"framesPerBuffer", d.framesPerBuffer,
	)
	return &portAudioPlaybackStream{
		logger: d.logger,
		closer: portAudioStreamCloser{stream: stream},
		buf:    buf,
	}, nil
}

type portAudioPlaybackStream struct {
	logger  *slog.Logger
	closer  portAudioStreamCloser
	aligner sampleAligner

	// buf[:filled] holds samples waiting for a full device buffer.
	buf    []int16
	filled int
}

// Write fills the device buffer and blocks on PortAudio each time it is full.
// Samples that do not fill a whole buffer wait for the next Write.
func (s *portAudioPlaybackStream) Write(p []byte) (int, error) {
	data := s.aligner.feed(p)
	for len(data) > 0 {
		k := min((len(s.buf)-s.filled)*frame.BytesPerSample, len(data))
		samples, err := frame.Decode(data[:k])
		if err != nil {
			return 0, err
		}
		s.filled += copy(s.buf[s.filled:], samples)
		data = data[k:]

		if s.filled == len(s.buf) {
			err := s.closer.stream.Write()
			if errors.Is(err, portaudio.OutputUnderflowed) {
				s.logger.Warn("output underflow detected")
			} else if err != nil {
				return 0, err
			}
			s.filled = 0
		}
	}
	return len(p), nil
}

func (s *portAudioPlaybackStream) Stop() error {
	return s.closer.stop()
}

func (s *portAudioPlaybackStream) Close() error {
	err := s.closer.close()
	s.logger.Info("portaudio playback closed")
	return err
}
