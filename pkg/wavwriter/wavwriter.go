// Package wavwriter serializes captured PCM audio, either inside a canonical
// 44-byte RIFF/WAVE container or as headerless raw PCM.
package wavwriter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/chirpsounder/pkg/audiodevice"
)

// Size of the canonical RIFF/WAVE header in bytes.
const HeaderSize = 44

const (
	fmtChunkSize = 16
	formatPCM    = 1
	// RIFF chunk size field counts everything after itself: 36 header bytes plus data.
	riffHeaderRemainder = HeaderSize - 8
)

var (
	ErrDataTooLarge  = errors.New("audio data too large for a RIFF container")
	ErrInvalidFormat = errors.New("invalid audio format for a RIFF container")
	ErrUnknownMode   = errors.New("unknown output mode")
)

// How captured audio is persisted.
type OutputMode int

const (
	ModeWAV OutputMode = iota
	ModeRawPCM
)

func (m OutputMode) String() string {
	switch m {
	case ModeWAV:
		return "wav"
	case ModeRawPCM:
		return "pcm"
	}
	return fmt.Sprintf("OutputMode(%d)", int(m))
}

// File extension for the mode, without the dot.
func (m OutputMode) Extension() string {
	return m.String()
}

// Parse "wav" or "pcm" (case-insensitive; "raw" is accepted for pcm).
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wav", "wave":
		return ModeWAV, nil
	case "pcm", "raw":
		return ModeRawPCM, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func checkFormat(format audiodevice.AudioFormat) error {
	if format.SampleRate <= 0 || format.NumChannels <= 0 ||
		format.BitsPerSample <= 0 || format.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidFormat, format)
	}
	if int64(format.ByteRate()) > math.MaxUint32 || format.BlockAlign() > math.MaxUint16 ||
		format.NumChannels > math.MaxUint16 || format.BitsPerSample > math.MaxUint16 {
		return fmt.Errorf("%w: %+v", ErrInvalidFormat, format)
	}
	return nil
}

// Build the 44-byte header describing dataLen bytes of audio in the given format.
func Header(dataLen int, format audiodevice.AudioFormat) ([]byte, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	if dataLen < 0 || uint64(dataLen) > math.MaxUint32-riffHeaderRemainder {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, dataLen)
	}

	h := make([]byte, 0, HeaderSize)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(riffHeaderRemainder+dataLen))
	h = append(h, "WAVE"...)
	h = append(h, "fmt "...)
	h = binary.LittleEndian.AppendUint32(h, fmtChunkSize)
	h = binary.LittleEndian.AppendUint16(h, formatPCM)
	h = binary.LittleEndian.AppendUint16(h, uint16(format.NumChannels))
	h = binary.LittleEndian.AppendUint32(h, uint32(format.SampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(format.ByteRate()))
	h = binary.LittleEndian.AppendUint16(h, uint16(format.BlockAlign()))
	h = binary.LittleEndian.AppendUint16(h, uint16(format.BitsPerSample))
	h = append(h, "data"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(dataLen))
	return h, nil
}

// Wrap data in a RIFF/WAVE container. The data is copied.
func WriteWav(data []byte, format audiodevice.AudioFormat) ([]byte, error) {
	header, err := Header(len(data), format)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderSize+len(data))
	out = append(out, header...)
	return append(out, data...), nil
}

// Serialize data according to mode. Raw PCM is returned as a copy of data.
func Encode(data []byte, format audiodevice.AudioFormat, mode OutputMode) ([]byte, error) {
	switch mode {
	case ModeWAV:
		return WriteWav(data, format)
	case ModeRawPCM:
		return bytes.Clone(data), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
}

// Stream data to w according to mode, without copying the payload.
// Returns the number of bytes written.
func Write(w io.Writer, data []byte, format audiodevice.AudioFormat, mode OutputMode) (int64, error) {
	var written int64
	switch mode {
	case ModeWAV:
		header, err := Header(len(data), format)
		if err != nil {
			return 0, err
		}
		n, err := w.Write(header)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("could not write wav header: %w", err)
		}
	case ModeRawPCM:
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	n, err := w.Write(data)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("could not write audio data: %w", err)
	}
	return written, nil
}
