package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

var (
	errInvalidAudioFile = errors.New("could not decode audio file")
	errEmptyAudioFile   = errors.New("audio file holds no samples")
)

// --------------------------------------------------------------------------------
// FileCaptureSource

// Define a CaptureSource that replays a .WAV file in a loop, as if it were
// heard by a microphone. Useful to re-run a session against a recording.
//
// The file may have any sample rate, channel count and integer bit depth;
// it is converted to the session format when the capture is opened.
// Audio is delivered at real-time speed.
type FileCaptureSource struct {
	logger        *slog.Logger
	uuid          uuid.UUID
	audioFilePath string
}

func NewFileCaptureSource(audioFilePath string) *FileCaptureSource {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file capture device uuid", uuid,
	)
	return &FileCaptureSource{
		logger:        logger,
		uuid:          uuid,
		audioFilePath: audioFilePath,
	}
}

// Open the file, decode it fully and convert it to the given format.
// The file handle is released before this returns.
func (d *FileCaptureSource) OpenCapture(format audiodevice.AudioFormat) (audiodevice.CaptureStream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.NumChannels != 1 || format.BitsPerSample != 16 {
		return nil, audiodevice.ErrInvalidFormat
	}

	f, err := os.Open(d.audioFilePath)
	if err != nil {
		d.logger.Error(
			"could not open audio file",
			"audioFile", d.audioFilePath,
			"err", err,
		)
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		d.logger.Error(
			"could not decode audio file",
			"audioFile", d.audioFilePath,
			"err", decoder.Err(),
		)
		return nil, errInvalidAudioFile
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		d.logger.Error(
			"could not get full PCM buffer from audio file",
			"audioFile", d.audioFilePath,
			"err", err,
		)
		return nil, fmt.Errorf("%w: %w", errInvalidAudioFile, err)
	}

	mono := toMonoFloat32(buf)
	mono = resampleMono(mono, int(decoder.SampleRate), format.SampleRate)
	data := frame.Encode(toPCM16(mono))
	if len(data) == 0 {
		return nil, errEmptyAudioFile
	}

	d.logger.Debug(
		"loaded audio file",
		"audioFile", d.audioFilePath,
		"fileSampleRate", decoder.SampleRate,
		"fileChannels", decoder.NumChans,
		"fileBitDepth", decoder.BitDepth,
		"sessionSampleRate", format.SampleRate,
		"samples", len(data)/frame.BytesPerSample,
	)

	return &fileCaptureStream{
		data:  data,
		pacer: newPacer(format),
	}, nil
}

type fileCaptureStream struct {
	data   frame.EncodedFrame
	offset int
	pacer  *pacer
	closed bool
}

// Read the next part of the file, wrapping to the start at the end.
func (s *fileCaptureStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, audiodevice.ErrStreamClosed
	}
	n := len(p) - len(p)%frame.BytesPerSample
	for written := 0; written < n; {
		c := copy(p[written:n], s.data[s.offset:])
		written += c
		s.offset = (s.offset + c) % len(s.data)
	}
	s.pacer.wait(n)
	return n, nil
}

func (s *fileCaptureStream) Stop() error {
	return nil
}

func (s *fileCaptureStream) Close() error {
	s.closed = true
	s.data = nil
	return nil
}

// --------------------------------------------------------------------------------
// FilePlaybackSink

// Define a PlaybackSink that records everything played to a .WAV file
// instead of a speaker. The file is created when playback is opened and is
// only valid once the stream is closed.
//
// Audio is consumed at real-time speed.
type FilePlaybackSink struct {
	logger        *slog.Logger
	uuid          uuid.UUID
	audioFilePath string
}

func NewFilePlaybackSink(audioFilePath string) *FilePlaybackSink {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file playback device uuid", uuid,
	)
	return &FilePlaybackSink{
		logger:        logger,
		uuid:          uuid,
		audioFilePath: audioFilePath,
	}
}

func (d *FilePlaybackSink) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.NumChannels != 1 || format.BitsPerSample != 16 {
		return nil, audiodevice.ErrInvalidFormat
	}

	f, err := os.Create(d.audioFilePath)
	if err != nil {
		d.logger.Error(
			"could not create audio file",
			"audioFile", d.audioFilePath,
			"err", err,
		)
		return nil, err
	}

	encoder := wav.NewEncoder(f, format.SampleRate, format.BitsPerSample, format.NumChannels, 1)

	d.logger.Debug(
		"created audio file",
		"audioFile", d.audioFilePath,
		"sampleRate", encoder.SampleRate,
		"channels", encoder.NumChans,
	)

	return &filePlaybackStream{
		logger:     d.logger,
		encoder:    encoder,
		fileHandle: f,
		pacer:      newPacer(format),
		bufFormat: &goaudio.Format{
			SampleRate:  format.SampleRate,
			NumChannels: format.NumChannels,
		},
	}, nil
}

type filePlaybackStream struct {
	logger     *slog.Logger
	encoder    *wav.Encoder
	fileHandle *os.File
	pacer      *pacer
	bufFormat  *goaudio.Format
	aligner    sampleAligner

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

func (s *filePlaybackStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, audiodevice.ErrStreamClosed
	}

	samples, err := frame.Decode(s.aligner.feed(p))
	if err != nil {
		return 0, err
	}
	buf := &goaudio.IntBuffer{
		Format:         s.bufFormat,
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, sample := range samples {
		buf.Data[i] = int(sample)
	}
	if err := s.encoder.Write(buf); err != nil {
		s.logger.Error("error while writing audio to file", "err", err)
		return 0, err
	}

	s.pacer.wait(len(p))
	return len(p), nil
}

func (s *filePlaybackStream) Stop() error {
	return nil
}

// Finalize the WAV header and close the file.
func (s *filePlaybackStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.closeErr = errors.Join(
			s.encoder.Close(),
			s.fileHandle.Sync(),
			s.fileHandle.Close(),
		)
	})
	return s.closeErr
}
