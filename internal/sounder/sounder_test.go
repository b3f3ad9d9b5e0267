package sounder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/sweep"
	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/wavwriter"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var testSpec = sweep.SweepSpec{StartHz: 400, EndHz: 1000, DurationSeconds: 1, SampleRate: 8000}

var errUnplugged = errors.New("microphone unplugged")

// A CaptureSource whose opens fail according to failOpen, and whose streams
// fail after readsBeforeError reads when readsBeforeError > 0.
type flakySource struct {
	mu               sync.Mutex
	opens            int
	failOpen         func(open int) bool
	readsBeforeError int
}

func (f *flakySource) OpenCapture(format audiodevice.AudioFormat) (audiodevice.CaptureStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failOpen != nil && f.failOpen(f.opens) {
		return nil, errUnplugged
	}
	return &flakyStream{readsLeft: f.readsBeforeError}, nil
}

type flakyStream struct {
	readsLeft int
}

func (s *flakyStream) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	if s.readsLeft == 1 {
		return 0, errUnplugged
	}
	if s.readsLeft > 1 {
		s.readsLeft--
	}
	for i := range p {
		p[i] = 0x11
	}
	return len(p), nil
}

func (s *flakyStream) Stop() error  { return nil }
func (s *flakyStream) Close() error { return nil }

// A PlaybackSink that accepts audio faster than real time.
type fastSink struct{}

func (fastSink) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	return fastSink{}, nil
}

func (fastSink) Write(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return len(p), nil
}

func (fastSink) Stop() error  { return nil }
func (fastSink) Close() error { return nil }

func newTestSounder(t *testing.T, source audiodevice.CaptureSource, config Config) (*Sounder, afero.Fs) {
	t.Helper()
	slog.SetDefault(slog.New(slog.DiscardHandler))
	fs := afero.NewMemMapFs()
	duplexSession := session.NewDuplexSession(fastSink{}, source, session.Options{})
	if config.OutputDir == "" {
		config.OutputDir = "/captures"
	}
	return NewSounder(duplexSession, fs, config, nil), fs
}

func TestRunPersistsEveryCycle(t *testing.T) {
	s, fs := newTestSounder(t, device.NewDummyCaptureSource(), Config{
		Spec:     testSpec,
		Stop:     session.StopAfter(20 * time.Millisecond),
		Cycles:   3,
		Interval: 5 * time.Millisecond,
		Mode:     wavwriter.ModeWAV,
	})

	paths, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("Run() wrote %d files, want 3: %v", len(paths), paths)
	}

	for _, path := range paths {
		name := filepath.Base(path)
		if filepath.Dir(path) != "/captures" || !strings.HasPrefix(name, DefaultPrefix+"_") || filepath.Ext(name) != ".wav" {
			t.Errorf("unexpected capture path %q", path)
		}

		f, err := fs.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		decoder := wav.NewDecoder(f)
		buf, err := decoder.FullPCMBuffer()
		f.Close()
		if err != nil {
			t.Fatalf("%s does not parse as WAV: %v", path, err)
		}
		if decoder.SampleRate != uint32(testSpec.SampleRate) || decoder.NumChans != 1 || decoder.BitDepth != 16 {
			t.Errorf("%s format = %d Hz, %d ch, %d bit", path, decoder.SampleRate, decoder.NumChans, decoder.BitDepth)
		}
		if len(buf.Data) == 0 {
			t.Errorf("%s holds no samples", path)
		}
	}
}

func TestRunRawPCM(t *testing.T) {
	s, fs := newTestSounder(t, &flakySource{}, Config{
		Spec:   testSpec,
		Stop:   session.StopAfter(10 * time.Millisecond),
		Cycles: 1,
		Prefix: "raw",
		Mode:   wavwriter.ModeRawPCM,
	})

	paths, err := s.Run(context.Background())
	if err != nil || len(paths) != 1 {
		t.Fatalf("Run() = %v, %v", paths, err)
	}
	if !strings.HasPrefix(filepath.Base(paths[0]), "raw_") || filepath.Ext(paths[0]) != ".pcm" {
		t.Errorf("unexpected capture path %q", paths[0])
	}
	data, err := afero.ReadFile(fs, paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || len(data)%session.DefaultReadChunkBytes != 0 {
		t.Fatalf("raw capture is %d bytes", len(data))
	}
	if !bytes.Equal(data, bytes.Repeat([]byte{0x11}, len(data))) {
		t.Error("raw capture is not the captured bytes")
	}
}

func TestFailedCycleDoesNotStopRun(t *testing.T) {
	source := &flakySource{failOpen: func(open int) bool { return open == 1 }}
	s, _ := newTestSounder(t, source, Config{
		Spec:   testSpec,
		Stop:   session.StopAfter(10 * time.Millisecond),
		Cycles: 2,
	})

	paths, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("Run() wrote %d files, want 1", len(paths))
	}
	if source.opens != 2 {
		t.Errorf("capture opened %d times, want 2", source.opens)
	}
}

func TestAllCyclesFailed(t *testing.T) {
	source := &flakySource{failOpen: func(int) bool { return true }}
	s, fs := newTestSounder(t, source, Config{
		Spec:   testSpec,
		Stop:   session.StopAfter(10 * time.Millisecond),
		Cycles: 2,
	})

	paths, err := s.Run(context.Background())
	if !errors.Is(err, ErrAllCyclesFailed) || !errors.Is(err, session.ErrPortOpenFailure) || !errors.Is(err, errUnplugged) {
		t.Errorf("Run() error = %v, want %v caused by %v", err, ErrAllCyclesFailed, errUnplugged)
	}
	if len(paths) != 0 {
		t.Errorf("Run() wrote %v, want nothing", paths)
	}
	entries, _ := afero.ReadDir(fs, "/captures")
	if len(entries) != 0 {
		t.Errorf("output directory holds %d files, want 0", len(entries))
	}
}

func TestPartialCaptureIsPersisted(t *testing.T) {
	source := &flakySource{readsBeforeError: 4}
	s, fs := newTestSounder(t, source, Config{
		Spec:   testSpec,
		Stop:   session.StopOnSignal(),
		Cycles: 1,
		Mode:   wavwriter.ModeRawPCM,
	})

	paths, err := s.Run(context.Background())
	if !errors.Is(err, session.ErrPortIOFailure) || !errors.Is(err, errUnplugged) {
		t.Errorf("Run() error = %v, want %v caused by %v", err, session.ErrPortIOFailure, errUnplugged)
	}
	if len(paths) != 1 {
		t.Fatalf("Run() wrote %d files, want the partial capture", len(paths))
	}
	data, err := afero.ReadFile(fs, paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := 3 * session.DefaultReadChunkBytes; len(data) != want {
		t.Errorf("partial capture = %d bytes, want %d", len(data), want)
	}
}

func TestUnboundedRunStopsWithContext(t *testing.T) {
	s, _ := newTestSounder(t, &flakySource{}, Config{
		Spec: testSpec,
		Stop: session.StopAfter(10 * time.Millisecond),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	paths, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(paths) < 2 {
		t.Errorf("Run() wrote %d files in 100ms of 10ms cycles", len(paths))
	}
}

func TestPersistAvoidsNameCollisions(t *testing.T) {
	s, fs := newTestSounder(t, &flakySource{}, Config{OutputDir: "/out", Mode: wavwriter.ModeWAV})
	if err := fs.MkdirAll("/out", 0755); err != nil {
		t.Fatal(err)
	}
	capture := &session.Capture{
		ID:        uuid.New(),
		Format:    audiodevice.MonoPCM16(8000),
		Data:      []byte{1, 0, 2, 0},
		StartedAt: time.UnixMilli(1700000000123),
	}

	tests := []struct {
		want string
	}{
		{"/out/chirp_reflection_1700000000123.wav"},
		{"/out/chirp_reflection_1700000000123_1.wav"},
		{"/out/chirp_reflection_1700000000123_2.wav"},
	}
	for _, tt := range tests {
		got, err := s.Persist(capture)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Persist() = %q, want %q", got, tt.want)
		}
		data, _ := afero.ReadFile(fs, got)
		if len(data) != wavwriter.HeaderSize+len(capture.Data) {
			t.Errorf("%s is %d bytes, want %d", got, len(data), wavwriter.HeaderSize+len(capture.Data))
		}
	}
}

func TestPersistRejectsEmptyCapture(t *testing.T) {
	s, _ := newTestSounder(t, &flakySource{}, Config{})
	capture := &session.Capture{Format: audiodevice.MonoPCM16(8000)}
	if _, err := s.Persist(capture); !errors.Is(err, ErrNothingCaptured) {
		t.Errorf("Persist() error = %v, want %v", err, ErrNothingCaptured)
	}
}
