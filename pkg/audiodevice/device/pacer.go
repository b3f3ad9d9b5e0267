package device

import (
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
)

// Hold a stream to real-time speed, so software devices behave like
// hardware that consumes or produces audio at the sample rate.
type pacer struct {
	start          time.Time
	bytesPerSecond int64
	total          int64
}

func newPacer(format audiodevice.AudioFormat) *pacer {
	return &pacer{bytesPerSecond: int64(format.ByteRate())}
}

// Account for n more bytes and sleep until they are due.
func (p *pacer) wait(n int) {
	if p.bytesPerSecond <= 0 {
		return
	}
	if p.start.IsZero() {
		p.start = time.Now()
	}
	p.total += int64(n)
	due := p.start.Add(time.Duration(p.total * int64(time.Second) / p.bytesPerSecond))
	if d := time.Until(due); d > 0 {
		time.Sleep(d)
	}
}

// --------------------------------------------------------------------------------

// Re-align a byte stream to whole 16-bit samples across calls.
// A trailing odd byte is carried over to the next feed.
type sampleAligner struct {
	carry []byte
	buf   []byte
}

func (a *sampleAligner) feed(p []byte) []byte {
	if len(a.carry) == 0 && len(p)%2 == 0 {
		return p
	}
	a.buf = append(append(a.buf[:0], a.carry...), p...)
	even := len(a.buf) - len(a.buf)%2
	a.carry = append(a.carry[:0], a.buf[even:]...)
	return a.buf[:even]
}
