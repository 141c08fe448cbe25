package command

import (
	"fmt"
	"strings"
)

const (
	messageUnknownCommand   = "unknown command %q (try help)"
	messageUsage            = "usage: %s"
	messageNoTranscripts    = "no transcripts yet (try new)"
	messageRecordingBusy    = "a recording is already in progress for %s"
	messageRecordingStarted = "recording into %s"
	messageRecordingStopped = "stopping recording of %s"
	messageNotRecording     = "nothing is recording"
	messageNotLoaded        = "audio for %s is not loaded (open it in a workspace first)"
	messageNoMatches        = "no entries match %q"
	messageNoSearch         = "no active search (try search)"
	messageDeleteRecording  = "cannot delete %s while it is recording"
	messageWebhookFailed    = "exported to %s, but the upload failed: %v"
	messageError            = "error: %v"
)

var usages = map[string]string{
	"new":       "new [title]",
	"list":      "list",
	"open":      "open <workspace> <id>",
	"close":     "close <workspace>",
	"record":    "record <id>",
	"stop":      "stop",
	"status":    "status",
	"play":      "play <id> <entry> [track]",
	"playrange": "playrange <id> <startMs> <endMs> [track]",
	"pause":     "pause [track]",
	"resume":    "resume <track>",
	"show":      "show <id>",
	"search":    "search <id> <query>",
	"next":      "next",
	"prev":      "prev",
	"edit":      "edit <id> <entry> <text>",
	"remove":    "remove <id> <entry>",
	"title":     "title <id> <title>",
	"tags":      "tags <id> <a,b,...>",
	"delete":    "delete <id>",
	"export":    "export <id> <path>",
	"import":    "import <path>",
	"reconnect": "reconnect",
	"help":      "help",
}

var helpOrder = []string{
	"new", "list", "open", "close", "record", "stop", "status",
	"play", "playrange", "pause", "resume", "show", "search", "next", "prev",
	"edit", "remove", "title", "tags", "delete", "export", "import", "reconnect",
}

func usage(name string) string {
	return fmt.Sprintf(messageUsage, usages[name])
}

func helpText() string {
	lines := make([]string, 0, len(helpOrder)+2)
	lines = append(lines, "commands (entries are numbered from 1, tracks from 0):")
	for _, name := range helpOrder {
		lines = append(lines, "  "+usages[name])
	}
	return strings.Join(lines, "\n")
}
