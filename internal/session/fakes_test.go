package session

import (
	"errors"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
)

// Shared, ordered record of port lifecycle calls.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) contains(event string) bool {
	for _, e := range l.snapshot() {
		if e == event {
			return true
		}
	}
	return false
}

var (
	errDeviceBusy = errors.New("device busy")
	errBoom       = errors.New("boom")
)

// --------------------------------------------------------------------------------

// A PlaybackSink that records every call and flags any Write that happens
// after the stream was stopped or closed.
type fakeSink struct {
	log       *eventLog
	openErr   error
	writeErr  error
	failAfter int // successful writes before writeErr is returned
	closeErr  error
	writeTime time.Duration

	mu         sync.Mutex
	opens      int
	stops      int
	closes     int
	writes     int
	written    int64
	violations int
	stopped    bool
	closed     bool
}

func newFakeSink(log *eventLog) *fakeSink {
	return &fakeSink{log: log, writeTime: 200 * time.Microsecond}
}

func (f *fakeSink) OpenPlayback(format audiodevice.AudioFormat) (audiodevice.PlaybackStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.log.add("playback.open")
	return f, nil
}

func (f *fakeSink) Write(p []byte) (int, error) {
	time.Sleep(f.writeTime)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || f.closed {
		f.violations++
		return 0, audiodevice.ErrStreamClosed
	}
	if f.writeErr != nil && f.writes >= f.failAfter {
		return 0, f.writeErr
	}
	f.writes++
	f.written += int64(len(p))
	return len(p), nil
}

func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.stopped = true
	f.log.add("playback.stop")
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closed = true
	f.log.add("playback.close")
	return f.closeErr
}

func (f *fakeSink) counts() (opens, stops, closes, violations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.stops, f.closes, f.violations
}

// --------------------------------------------------------------------------------

// A CaptureSource that fills each read with the read's sequence number.
type fakeSource struct {
	log       *eventLog
	openErr   error
	readErr   error
	failAfter int // successful reads before readErr is returned
	readTime  time.Duration

	mu                 sync.Mutex
	opens              int
	stops              int
	closes             int
	reads              int
	readsAfterPlayback int
	violations         int
	closed             bool
}

func newFakeSource(log *eventLog) *fakeSource {
	return &fakeSource{log: log, readTime: time.Millisecond}
}

func (f *fakeSource) OpenCapture(format audiodevice.AudioFormat) (audiodevice.CaptureStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.log.add("capture.open")
	return f, nil
}

func (f *fakeSource) Read(p []byte) (int, error) {
	time.Sleep(f.readTime)
	playbackClosed := f.log.contains("playback.close")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.violations++
		return 0, audiodevice.ErrStreamClosed
	}
	if f.readErr != nil && f.reads >= f.failAfter {
		return 0, f.readErr
	}
	f.reads++
	if playbackClosed {
		f.readsAfterPlayback++
	}
	for i := range p {
		p[i] = byte(f.reads)
	}
	return len(p), nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.log.add("capture.stop")
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closed = true
	f.log.add("capture.close")
	return nil
}

func (f *fakeSource) counts() (opens, stops, closes, violations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.stops, f.closes, f.violations
}
