package transcript

import (
	"fmt"
	"strings"
	"time"
)

const transcriptTimeLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders a millisecond offset as HH:MM:SS.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return formatElapsedHMS(time.Duration(ms) * time.Millisecond)
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// RenderText builds the plain-text view of a transcript.
func RenderText(meta Metadata, entries []Entry) []byte {
	lines := []string{
		fmt.Sprintf("Title: %s", meta.Title),
		fmt.Sprintf("Created: %s", meta.CreatedAt.UTC().Format(transcriptTimeLayout)),
	}
	if len(meta.Tags) > 0 {
		lines = append(lines, fmt.Sprintf("Tags: %s", strings.Join(meta.Tags, ", ")))
	}
	lines = append(lines, "")
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s: %s", FormatTimestamp(e.Timing), e.Speaker, e.Content))
	}
	return []byte(strings.Join(lines, "\n"))
}
