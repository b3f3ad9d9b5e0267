package frame

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncodeLittleEndian(t *testing.T) {
	encoded := Encode(PCMFrame{0, 1, -1, math.MaxInt16, math.MinInt16, 0x1234})
	want := []byte{
		0x00, 0x00,
		0x01, 0x00,
		0xFF, 0xFF,
		0xFF, 0x7F,
		0x00, 0x80,
		0x34, 0x12,
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Encode() = % x, want % x", encoded, want)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, length := range []int{0, 1, 2, 3, 255, 4096} {
		samples := make(PCMFrame, length)
		for i := range samples {
			samples[i] = int16((i*7919)%65536 - 32768)
		}

		decoded, err := Decode(Encode(samples))
		if err != nil {
			t.Fatalf("length %d: Decode() error = %v", length, err)
		}
		if len(decoded) != len(samples) {
			t.Fatalf("length %d: decoded %d samples", length, len(decoded))
		}
		for i := range samples {
			if decoded[i] != samples[i] {
				t.Errorf("length %d: sample[%d] = %d, want %d", length, i, decoded[i], samples[i])
				break
			}
		}
	}
}

func TestDecodeOddLength(t *testing.T) {
	_, err := Decode(EncodedFrame{0x01, 0x02, 0x03})
	if !errors.Is(err, ErrOddLength) {
		t.Errorf("Decode() error = %v, want %v", err, ErrOddLength)
	}
}

func TestEncodeIntoShortDestination(t *testing.T) {
	dst := make([]byte, 5)
	n := EncodeInto(dst, PCMFrame{1, 2, 3, 4})
	if n != 4 {
		t.Errorf("EncodeInto() = %d, want 4", n)
	}
}

func TestAlignChunk(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 2},
		{0, 2},
		{1, 2},
		{2, 2},
		{3, 2},
		{4097, 4096},
		{4096, 4096},
	}
	for _, tt := range tests {
		if got := AlignChunk(tt.in); got != tt.want {
			t.Errorf("AlignChunk(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestChunkLooperWraps(t *testing.T) {
	data := Encode(PCMFrame{1, 2, 3, 4, 5})
	looper, err := NewChunkLooper(data, 5)
	if err != nil {
		t.Fatal(err)
	}
	if looper.ChunkBytes() != 4 {
		t.Fatalf("ChunkBytes() = %d, want 4", looper.ChunkBytes())
	}

	var played []byte
	for range 7 {
		chunk := looper.Next()
		if len(chunk)%BytesPerSample != 0 {
			t.Fatalf("chunk of %d bytes splits a sample", len(chunk))
		}
		played = append(played, chunk...)
	}

	want := append(append(append([]byte{}, data...), data...), data[:4]...)
	if !bytes.Equal(played, want) {
		t.Errorf("played % x, want % x", played, want)
	}
	if looper.Loops() != 2 {
		t.Errorf("Loops() = %d, want 2", looper.Loops())
	}
}

func TestChunkLooperRejectsBadFrames(t *testing.T) {
	if _, err := NewChunkLooper(nil, 4); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty frame error = %v, want %v", err, ErrEmptyFrame)
	}
	if _, err := NewChunkLooper(EncodedFrame{1, 2, 3}, 4); !errors.Is(err, ErrOddLength) {
		t.Errorf("odd frame error = %v, want %v", err, ErrOddLength)
	}
}
