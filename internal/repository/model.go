package repository

import (
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

// TranscriptSummary is one row of the transcript listing.
type TranscriptSummary struct {
	transcript.Metadata
	EntryCount int
	AudioBytes int
	UpdatedAt  time.Time
}

func (s TranscriptSummary) HasAudio() bool {
	return s.AudioBytes > 0
}
