package audiodevice

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrStreamClosed  = errors.New("audio stream closed")
)

// The PCM format a stream is opened with.
//
// Chirpsounder streams are mono signed 16-bit PCM, see MonoPCM16,
// but the format is carried explicitly so containers can describe it.
type AudioFormat struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int
}

// Mono, signed 16-bit PCM at the given sample rate.
func MonoPCM16(sampleRate int) AudioFormat {
	return AudioFormat{
		SampleRate:    sampleRate,
		NumChannels:   1,
		BitsPerSample: 16,
	}
}

func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 || f.NumChannels <= 0 || f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidFormat, f)
	}
	return nil
}

// Bytes used by one sample of every channel.
func (f AudioFormat) BlockAlign() int {
	return f.NumChannels * f.BitsPerSample / 8
}

// Bytes per second of audio.
func (f AudioFormat) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Time it takes to play or capture n bytes of audio in this format.
func (f AudioFormat) Duration(n int) time.Duration {
	if f.ByteRate() == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(f.ByteRate()))
}

// --------------------------------------------------------------------------------

// Interface for audio sink devices, e.g. speakers.
//
// Opening a PlaybackSink acquires the device and starts playback.
// Opening may fail (device busy, permission revoked); that is reported as an error.
type PlaybackSink interface {
	OpenPlayback(format AudioFormat) (PlaybackStream, error)
}

// An opened, running playback stream.
//
// Write may block until the device has room for the data.
// Stop halts playback; Close releases the device. Callers must not Write
// after Stop or Close has been called.
type PlaybackStream interface {
	Write(p []byte) (int, error)
	Stop() error
	Close() error
}

// Interface for audio source devices, e.g. microphones.
//
// Opening a CaptureSource acquires the device and starts capturing.
type CaptureSource interface {
	OpenCapture(format AudioFormat) (CaptureStream, error)
}

// An opened, running capture stream.
//
// Read blocks until some captured bytes are available and returns at most len(p) bytes.
// Stop halts capturing; Close releases the device.
type CaptureStream interface {
	Read(p []byte) (int, error)
	Stop() error
	Close() error
}
