// Package protocol defines the JSON messages exchanged with the remote
// transcriber over the duplex channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeAudio         = "audio"
	TypeEnd           = "end"
	TypeAddTranscript = "add_transcript"
	TypeNotification  = "notification"
)

// AudioMessage carries one flushed slice of audio chunks. Data is base64
// encoded on the wire.
type AudioMessage struct {
	Type      string `json:"type"`
	Sequence  int    `json:"sequence"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// EndMessage marks the end of a recording's audio stream.
type EndMessage struct {
	Type      string `json:"type"`
	Sequence  int    `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func EncodeAudio(sequence int, data []byte, at time.Time) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	b, err := json.Marshal(AudioMessage{
		Type:      TypeAudio,
		Sequence:  sequence,
		Data:      data,
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode audio message: %w", err)
	}
	return b, nil
}

func EncodeEnd(sequence int, at time.Time) ([]byte, error) {
	b, err := json.Marshal(EndMessage{
		Type:      TypeEnd,
		Sequence:  sequence,
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode end message: %w", err)
	}
	return b, nil
}

// Inbound is one decoded message from the transcriber. The concrete type is
// one of AddTranscript, Notification, End or Unknown.
type Inbound interface {
	inboundType() string
}

type AddTranscript struct {
	ID         string
	Transcript string
}

type Notification struct {
	Payload json.RawMessage
}

type End struct{}

// Unknown is a well-formed message whose type this client does not handle.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (AddTranscript) inboundType() string { return TypeAddTranscript }
func (Notification) inboundType() string  { return TypeNotification }
func (End) inboundType() string           { return TypeEnd }
func (u Unknown) inboundType() string     { return u.Type }

// TypeOf reports the wire type of an inbound message.
func TypeOf(msg Inbound) string {
	return msg.inboundType()
}

type envelope struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Transcript string          `json:"transcript"`
	Payload    json.RawMessage `json:"payload"`
}

func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode inbound message: %w", err)
	}
	switch env.Type {
	case TypeAddTranscript:
		return AddTranscript{ID: env.ID, Transcript: env.Transcript}, nil
	case TypeNotification:
		return Notification{Payload: env.Payload}, nil
	case TypeEnd:
		return End{}, nil
	default:
		return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}
