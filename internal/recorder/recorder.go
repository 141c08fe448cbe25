// Package recorder runs the single recording session: it drives the capture
// device, streams sequence-numbered audio to the transcriber while
// recording, and publishes the assembled audio when the recording ends.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrStartAborted is returned by Start when Stop was called while the
	// device was still being acquired.
	ErrStartAborted = errors.New("recording start aborted")
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
	// StateCancelling follows a stop during device acquisition and lasts
	// until the pending acquisition has returned.
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Transport is the duplex channel recorded audio is streamed through.
type Transport interface {
	Connect(ctx context.Context, endpoint string) error
	Disconnect()
	Send(data []byte) error
}

type AudioStore interface {
	SetAudio(ctx context.Context, id transcript.ID, audio []byte) error
}

type AudioPlayer interface {
	// LoadIfOpen makes audio playable only while id is open for viewing.
	LoadIfOpen(id transcript.ID, audio []byte) (bool, error)
}

// Progress is a point-in-time view of the session.
type Progress struct {
	State         State
	TranscriptID  transcript.ID
	Chunks        int
	LastSentIndex int
	NextSequence  int
	StartedAt     time.Time
}
