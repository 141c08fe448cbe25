// Package router applies messages pushed by the transcriber to the
// transcript store.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/protocol"
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

const storeTimeout = 5 * time.Second

type EntryStore interface {
	AppendEntries(ctx context.Context, id transcript.ID, entries []transcript.Entry) error
}

type Disconnector interface {
	Disconnect()
}

type Router struct {
	store   EntryStore
	channel Disconnector
}

func NewRouter(store EntryStore, channel Disconnector) *Router {
	return &Router{store: store, channel: channel}
}

// HandleMessage decodes and dispatches one raw inbound message. Errors are
// logged; nothing is returned to the transport.
func (r *Router) HandleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		slog.Error("failed to parse inbound message", "error", err, "message_bytes", len(data))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.Dispatch(ctx, msg); err != nil {
		slog.Error("failed to apply inbound message", "type", protocol.TypeOf(msg), "error", err)
	}
}

func (r *Router) Dispatch(ctx context.Context, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.AddTranscript:
		return r.addTranscript(ctx, m)
	case protocol.Notification:
		slog.Info("transcriber notification", "payload", string(m.Payload))
		return nil
	case protocol.End:
		slog.Info("transcriber ended the session")
		r.channel.Disconnect()
		return nil
	default:
		slog.Warn("ignoring inbound message of unknown type", "type", protocol.TypeOf(msg))
		return nil
	}
}

func (r *Router) addTranscript(ctx context.Context, m protocol.AddTranscript) error {
	entries, skipped := protocol.ParseTranscriptLines(m.Transcript)
	for _, s := range skipped {
		slog.Warn("skipping malformed transcript line", "transcript_id", m.ID, "line", s.Line, "reason", s.Reason)
	}
	if m.ID == "" {
		slog.Warn("transcript push without id dropped", "entries", len(entries))
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	if err := r.store.AppendEntries(ctx, m.ID, entries); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("transcript push for unknown transcript dropped", "transcript_id", m.ID, "entries", len(entries))
			return nil
		}
		return fmt.Errorf("append %d entries to %s: %w", len(entries), m.ID, err)
	}
	slog.Debug("transcript entries appended", "transcript_id", m.ID, "entries", len(entries), "skipped", len(skipped))
	return nil
}
