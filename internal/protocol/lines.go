package protocol

import (
	"strconv"
	"strings"

	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

const lineFieldSeparator = "\x00"

// SkippedLine is a transcript line that could not be parsed.
type SkippedLine struct {
	Line   int
	Text   string
	Reason string
}

// ParseTranscriptLines parses the add_transcript body: one entry per line,
// fields speaker, timing and content separated by NUL, with an optional
// trailing NUL. Blank lines are ignored. Malformed lines are returned as
// skipped and never abort the batch.
func ParseTranscriptLines(body string) ([]transcript.Entry, []SkippedLine) {
	var (
		entries []transcript.Entry
		skipped []SkippedLine
	)
	for i, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, lineFieldSeparator)
		if len(parts) == 4 && parts[3] == "" {
			parts = parts[:3]
		}
		if len(parts) != 3 {
			skipped = append(skipped, SkippedLine{Line: i + 1, Text: line, Reason: "expected 3 fields, got " + strconv.Itoa(len(parts))})
			continue
		}
		timing, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			skipped = append(skipped, SkippedLine{Line: i + 1, Text: line, Reason: "invalid timing " + strconv.Quote(parts[1])})
			continue
		}
		entries = append(entries, transcript.Entry{
			Speaker: parts[0],
			Timing:  timing,
			Content: parts[2],
		})
	}
	return entries, skipped
}
