// Package transcript holds the transcript data model shared by the recorder,
// the archive codec, the inbound router and the store.
//
// Entry timings are milliseconds from the start of the recording everywhere.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

const DefaultTitle = "Untitled Transcript"

type ID = string

type Entry struct {
	Speaker string
	Timing  int64
	Content string
}

type Metadata struct {
	ID        ID
	Title     string
	CreatedAt time.Time
	Tags      []string
}

// NewID returns a time-ordered identifier for a new transcript.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
