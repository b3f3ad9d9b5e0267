package sweep

import (
	"errors"
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
)

var (
	ErrInvalidFrequency  = errors.New("sweep: frequency must be finite and non-negative")
	ErrInvalidDuration   = errors.New("sweep: duration must be positive")
	ErrInvalidSampleRate = errors.New("sweep: sample rate must be positive")
	ErrTooLong           = errors.New("sweep: sweep is too long to be stored as 16-bit PCM")
)

// Largest PCM payload a RIFF container can describe (its length field is
// 32 bits and also counts the 36 header bytes following it).
const maxPayloadBytes = math.MaxUint32 - 36

// Define a linear frequency sweep (chirp).
//
// StartHz and EndHz may be equal (a constant tone) and the sweep may run in
// either direction. SweepSpec is a value type; copies are independent.
type SweepSpec struct {
	StartHz         float64
	EndHz           float64
	DurationSeconds int
	SampleRate      int
}

// Check the sweep can be generated.
func (s SweepSpec) Validate() error {
	for _, f := range []float64{s.StartHz, s.EndHz} {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return ErrInvalidFrequency
		}
	}
	if s.DurationSeconds <= 0 {
		return ErrInvalidDuration
	}
	if s.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	// Divide rather than multiply so huge values cannot wrap around.
	if uint64(s.DurationSeconds) > maxPayloadBytes/frame.BytesPerSample/uint64(s.SampleRate) {
		return ErrTooLong
	}
	return nil
}

// Number of samples in the generated sweep.
func (s SweepSpec) TotalSamples() int {
	return s.DurationSeconds * s.SampleRate
}

// Instantaneous frequency of the sweep at time t seconds.
func (s SweepSpec) FrequencyAt(t float64) float64 {
	return s.StartHz + (s.EndHz-s.StartHz)*(t/float64(s.DurationSeconds))
}

// Generate the sweep as signed 16-bit samples.
//
// Sample i is round(sin(2π·f(t)·t)·32767) with t = i/SampleRate and f the
// linearly interpolated frequency, clamped to the int16 range. The result
// depends only on the spec.
func Generate(spec SweepSpec) (frame.PCMFrame, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	total := spec.TotalSamples()
	samples := make(frame.PCMFrame, total)
	sampleRate := float64(spec.SampleRate)
	for i := range total {
		t := float64(i) / sampleRate
		v := math.Round(math.Sin(2*math.Pi*spec.FrequencyAt(t)*t) * math.MaxInt16)
		samples[i] = clamp(v)
	}
	return samples, nil
}

func clamp(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
