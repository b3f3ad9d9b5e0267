package frame

import (
	"encoding/binary"
	"errors"
)

// Number of bytes used by one signed 16-bit sample.
const BytesPerSample = 2

var (
	ErrOddLength  = errors.New("encoded frame length is not a whole number of samples")
	ErrEmptyFrame = errors.New("encoded frame is empty")
)

// A sequence of signed 16-bit mono PCM samples.
type PCMFrame []int16

// A PCMFrame serialized as little-endian bytes, two bytes per sample.
type EncodedFrame []byte

// Encode the samples as little-endian signed 16-bit bytes.
func Encode(samples PCMFrame) EncodedFrame {
	encoded := make(EncodedFrame, len(samples)*BytesPerSample)
	EncodeInto(encoded, samples)
	return encoded
}

// Encode samples into dst, returning the number of bytes written.
// Only as many whole samples as fit in dst are written.
func EncodeInto(dst []byte, samples PCMFrame) int {
	n := min(len(samples), len(dst)/BytesPerSample)
	for i := range n {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(samples[i]))
	}
	return n * BytesPerSample
}

// Decode little-endian signed 16-bit bytes back into samples.
//
// An encoded frame that splits a sample (odd length) is rejected with ErrOddLength.
func Decode(encoded EncodedFrame) (PCMFrame, error) {
	if len(encoded)%BytesPerSample != 0 {
		return nil, ErrOddLength
	}
	samples := make(PCMFrame, len(encoded)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(encoded[i*BytesPerSample:]))
	}
	return samples, nil
}

// Round a chunk size in bytes down to a whole number of samples.
// The result is never smaller than one sample.
func AlignChunk(chunkBytes int) int {
	aligned := chunkBytes - chunkBytes%BytesPerSample
	if aligned < BytesPerSample {
		return BytesPerSample
	}
	return aligned
}

// --------------------------------------------------------------------------------
// ChunkLooper

// Serve an EncodedFrame as fixed-size chunks, wrapping back to the start when
// the end is reached so the frame plays as a continuous repeating tone.
//
// Chunks are slices of the underlying frame and must be treated as read-only.
// Every chunk holds a whole number of samples. A ChunkLooper is not safe
// for concurrent use; it is owned by a single writer.
type ChunkLooper struct {
	data       EncodedFrame
	chunkBytes int
	offset     int
	loops      int
}

// Create a ChunkLooper over data. chunkBytes is aligned down to a whole
// number of samples.
func NewChunkLooper(data EncodedFrame, chunkBytes int) (*ChunkLooper, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(data)%BytesPerSample != 0 {
		return nil, ErrOddLength
	}
	return &ChunkLooper{
		data:       data,
		chunkBytes: AlignChunk(chunkBytes),
	}, nil
}

// Return the next chunk. The last chunk of a pass may be shorter than the
// chunk size; the following call starts again at the beginning of the frame.
func (l *ChunkLooper) Next() []byte {
	end := min(l.offset+l.chunkBytes, len(l.data))
	chunk := l.data[l.offset:end]
	l.offset = end
	if l.offset == len(l.data) {
		l.offset = 0
		l.loops += 1
	}
	return chunk
}

// Number of complete passes over the frame served so far.
func (l *ChunkLooper) Loops() int {
	return l.loops
}

func (l *ChunkLooper) ChunkBytes() int {
	return l.chunkBytes
}
