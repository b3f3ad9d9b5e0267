package device

import (
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/oov/audio/resampler"
)

const (
	// Scratch space for one resampler pass. The resampler is called repeatedly
	// until all input has been consumed, so this only bounds the step size.
	resampleChunkSize = 16384

	resampleQuality = 10
)

// Conversion of decoded file audio into the session format:
// interleaved integer samples of any channel count and bit depth
// become mono float32 in [-1, 1], are resampled to the target rate,
// and are quantized to 16-bit PCM.

// Average all channels of an interleaved buffer into one, scaled to [-1, 1].
func toMonoFloat32(buf *goaudio.IntBuffer) []float32 {
	numChannels := max(buf.Format.NumChannels, 1)
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	fullScale := float32(math.Pow(2, float64(bitDepth-1)))

	mono := make([]float32, len(buf.Data)/numChannels)
	for i := range mono {
		var sum float32
		for c := range numChannels {
			sum += float32(buf.Data[i*numChannels+c])
		}
		mono[i] = sum / float32(numChannels) / fullScale
	}
	return mono
}

// Resample mono audio from one rate to another.
func resampleMono(samples []float32, fromRate int, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	r := resampler.New(1, fromRate, toRate, resampleQuality)
	out := make([]float32, 0, len(samples)*toRate/fromRate+1)
	buf := make([]float32, resampleChunkSize)
	for len(samples) > 0 {
		read, written := r.ProcessFloat32(0, samples, buf)
		out = append(out, buf[:written]...)
		samples = samples[read:]
		if read == 0 && written == 0 {
			break
		}
	}
	return out
}

// Quantize [-1, 1] audio to 16-bit PCM, saturating out-of-range values.
func toPCM16(samples []float32) frame.PCMFrame {
	const maxInt16 = float64(math.MaxInt16)
	pcm := make(frame.PCMFrame, len(samples))
	for i, v := range samples {
		s := math.Round(float64(v) * maxInt16)
		pcm[i] = int16(max(min(s, maxInt16), math.MinInt16))
	}
	return pcm
}
