// Package audio defines the capture and playback devices the recorder and
// the playback engine drive, and the streaming WAV framing of recorded
// audio.
package audio

import (
	"context"
	"time"
)

// CaptureSink receives events from a started CaptureDevice. OnChunk is
// called from the device's goroutine, in capture order. OnStopped is called
// exactly once after Stop, after the final chunk.
type CaptureSink interface {
	OnChunk(chunk []byte)
	OnStopped()
}

type CaptureDevice interface {
	// Acquire opens the device. It may block on the platform's permission
	// prompt and is a no-op when already acquired.
	Acquire(ctx context.Context) error
	// Start begins capture, emitting one chunk per interval.
	Start(interval time.Duration, sink CaptureSink) error
	// Stop requests the end of capture and returns immediately.
	Stop()
	// Release closes the device. A released device can be acquired again.
	Release() error
}

// Clip is a loaded, decodable audio resource.
type Clip interface {
	NewVoice() (Voice, error)
	Duration() time.Duration
	Close() error
}

// Voice is one playback handle on a Clip.
type Voice interface {
	Seek(pos time.Duration) error
	Play()
	Pause()
	Position() time.Duration
	// Playing is false while paused and after the clip has run out.
	Playing() bool
	Close()
}

type ClipLoader interface {
	Load(data []byte) (Clip, error)
}
