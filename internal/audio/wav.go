package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	BitDepth = 16

	wavHeaderSize = 44
	// streamingSize marks RIFF and data sizes that are unknown while
	// recording.
	streamingSize = 0xFFFFFFFF
	pcmFormatTag  = 1
)

var ErrNotWAV = errors.New("not a WAV stream")

// StreamHeader returns the RIFF/WAVE header that starts the first chunk of
// a recording. Both size fields hold the streaming placeholder.
func StreamHeader(format *goaudio.Format) []byte {
	blockAlign := format.NumChannels * BitDepth / 8
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], streamingSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(h[22:24], uint16(format.NumChannels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(format.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], BitDepth)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], streamingSize)
	return h
}

// EncodePCM16 packs interleaved samples as signed 16-bit little endian.
func EncodePCM16(samples []int) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// NormalizeWAV returns a copy of a concatenated recording with the RIFF and
// data chunk sizes set from the actual length. A trailing partial sample
// frame is dropped.
func NormalizeWAV(data []byte) ([]byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}
	out := bytes.Clone(data)
	offset := 12
	blockAlign := 0
	for offset+8 <= len(out) {
		id := string(out[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(out[offset+4 : offset+8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if body+16 > len(out) {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			blockAlign = int(binary.LittleEndian.Uint16(out[body+12 : body+14]))
		case "data":
			dataLen := len(out) - body
			if blockAlign > 0 {
				dataLen -= dataLen % blockAlign
			}
			out = out[:body+dataLen]
			binary.LittleEndian.PutUint32(out[offset+4:offset+8], uint32(dataLen))
			binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
			return out, nil
		}
		if uint32(size) == streamingSize {
			return nil, fmt.Errorf("%w: unsized %q chunk", ErrNotWAV, id)
		}
		offset = body + size + size%2
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

// DecodeWAV decodes a recording, streaming or finalized, into PCM samples.
func DecodeWAV(data []byte) (*goaudio.IntBuffer, error) {
	normalized, err := NormalizeWAV(data)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(bytes.NewReader(normalized))
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	return buf, nil
}

// Duration reports the playing time of a recording.
func Duration(data []byte) (time.Duration, error) {
	buf, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	return FramesDuration(buf.NumFrames(), buf.Format.SampleRate), nil
}

func FramesDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
