package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

var errOtoSampleRateFixed = errors.New("oto context already running at a different sample rate")

// Oto allows one context per process, created with a fixed format.
var otoContext struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
}

func getOtoContext(sampleRate int, bufferFrames int) (*oto.Context, error) {
	otoContext.mu.Lock()
	defer otoContext.mu.Unlock()

	if otoContext.ctx != nil {
		if otoContext.sampleRate != sampleRate {
			return nil, fmt.Errorf("%w: running at %d Hz, requested %d Hz",
				errOtoSampleRateFixed, otoContext.sampleRate, sampleRate)
		}
		return otoContext.ctx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   audiodevice.MonoPCM16(sampleRate).Duration(bufferFrames * 2),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	otoContext.ctx = ctx
	otoContext.sampleRate = sampleRate
	return ctx, nil
}

// OtoPlaybackSink is a PlaybackSink that plays audio through the oto
// library, which needs no PortAudio installation.
//
// Written audio is handed to the oto player through a pipe, so Write blocks
// until the player has pulled the data.
type OtoPlaybackSink struct {
	logger       *slog.Logger
	uuid         uuid.UUID
	bufferFrames int
}

// Create a new OtoPlaybackSink. bufferFrames sets the device buffer size
// in samples (DefaultFramesPerBuffer when non-positive).
func NewOtoPlaybackSink(bufferFrames int) *OtoPlaybackSink {
	uuid := uuid.New()
	logger := slog.Default().With(
		"oto playback device uuid", uuid,
	)
	if bufferFrames <= 0 {
		bufferFrames = DefaultFramesPerBuffer
	}
	return &OtoPlaybackSink{
		logger:       logger,
		uuid:         uuid,
		bufferFrames: bufferFrames,
	}
}

func (d *OtoPlaybackSink) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.NumChannels != 1 || format.BitsPerSample != 16 {
		return nil, audiodevice.ErrInvalidFormat
	}

	ctx, err := getOtoContext(format.SampleRate, d.bufferFrames)
	if err != nil {
		d.logger.Error("failed to create oto context", "err", err)
		return nil, err
	}

	pipeReader, pipeWriter := io.Pipe()
	player := ctx.NewPlayer(pipeReader)
	player.Play()

	d.logger.Info("oto playback started", "sampleRate", format.SampleRate)
	return &otoPlaybackStream{
		logger:     d.logger,
		player:     player,
		pipeWriter: pipeWriter,
	}, nil
}

type otoPlaybackStream struct {
	logger     *slog.Logger
	player     *oto.Player
	pipeWriter *io.PipeWriter
	closeOnce  sync.Once
	closeErr   error
}

func (s *otoPlaybackStream) Write(p []byte) (int, error) {
	return s.pipeWriter.Write(p)
}

func (s *otoPlaybackStream) Stop() error {
	s.player.Pause()
	return nil
}

func (s *otoPlaybackStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.pipeWriter.Close(), s.player.Close())
		s.logger.Info("oto playback closed")
	})
	return s.closeErr
}
