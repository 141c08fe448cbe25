package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

var (
	ErrNotFound        = errors.New("transcript not found")
	ErrEntryOutOfRange = errors.New("entry index out of range")
)

type CreateTranscriptInput struct {
	Title     string
	CreatedAt time.Time
	Tags      []string
	Entries   []transcript.Entry
	Audio     []byte
}

type MetadataRepository interface {
	CreateTranscript(ctx context.Context, input CreateTranscriptInput) (*transcript.Metadata, error)
	GetMetadata(ctx context.Context, id transcript.ID) (*transcript.Metadata, error)
	ListMetadata(ctx context.Context) ([]TranscriptSummary, error)
	UpdateTitle(ctx context.Context, id transcript.ID, title string) error
	UpdateTags(ctx context.Context, id transcript.ID, tags []string) error
	DeleteTranscript(ctx context.Context, id transcript.ID) error
}

// EntryRepository keeps entries in arrival order. Indexes are zero based.
type EntryRepository interface {
	AppendEntries(ctx context.Context, id transcript.ID, entries []transcript.Entry) error
	ListEntries(ctx context.Context, id transcript.ID) ([]transcript.Entry, error)
	UpdateEntry(ctx context.Context, id transcript.ID, index int, entry transcript.Entry) error
	RemoveEntry(ctx context.Context, id transcript.ID, index int) error
}

// AudioRepository stores the single audio resource of a transcript.
// GetAudio returns nil without error when none has been recorded.
type AudioRepository interface {
	SetAudio(ctx context.Context, id transcript.ID, audio []byte) error
	GetAudio(ctx context.Context, id transcript.ID) ([]byte, error)
}

type Repository interface {
	MetadataRepository
	EntryRepository
	AudioRepository
}
