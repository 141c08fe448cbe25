package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/archive"
	"github.com/Izanyoi/dictadoc-web/internal/playback"
	"github.com/Izanyoi/dictadoc-web/internal/recorder"
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
	"github.com/Izanyoi/dictadoc-web/internal/webhook"
	"github.com/dustin/go-humanize"
)

const listTimeLayout = "2006-01-02 15:04"

type Recorder interface {
	Start(ctx context.Context, id transcript.ID) error
	Stop()
	Progress() recorder.Progress
}

type Player interface {
	UnloadResource(id transcript.ID)
	PlaySegment(id transcript.ID, seg playback.Segment, trackIndex int) error
	PauseTrack(trackIndex int)
	PauseAll()
	ResumeTrack(trackIndex int) error
	SyncWithOpenSet(ctx context.Context, open []transcript.ID) error
	ActiveTracks() []playback.TrackInfo
}

type Connection interface {
	Status() transport.Status
	Endpoint() string
	Attempts() int
	Reconnect(ctx context.Context) error
}

type handler func(ctx context.Context, args []string) (string, error)

// Manager turns command lines into operations on the store, the recorder,
// the playback engine and the transport.
type Manager struct {
	repo     repository.Repository
	recorder Recorder
	player   Player
	conn     Connection
	webhook  webhook.Sender
	handlers map[string]handler

	mu         sync.Mutex
	workspaces map[int]transcript.ID
	cursor     *transcript.Cursor
	cursorID   transcript.ID
}

func NewManager(repo repository.Repository, rec Recorder, player Player, conn Connection, wh webhook.Sender) *Manager {
	m := &Manager{
		repo:       repo,
		recorder:   rec,
		player:     player,
		conn:       conn,
		webhook:    wh,
		workspaces: make(map[int]transcript.ID),
	}
	m.handlers = map[string]handler{
		"new":       m.handleNew,
		"list":      m.handleList,
		"open":      m.handleOpen,
		"close":     m.handleClose,
		"record":    m.handleRecord,
		"stop":      m.handleStop,
		"status":    m.handleStatus,
		"play":      m.handlePlay,
		"playrange": m.handlePlayRange,
		"pause":     m.handlePause,
		"resume":    m.handleResume,
		"show":      m.handleShow,
		"search":    m.handleSearch,
		"next":      m.handleNext,
		"prev":      m.handlePrev,
		"edit":      m.handleEdit,
		"remove":    m.handleRemove,
		"title":     m.handleTitle,
		"tags":      m.handleTags,
		"delete":    m.handleDelete,
		"export":    m.handleExport,
		"import":    m.handleImport,
		"reconnect": m.handleReconnect,
		"help":      m.handleHelp,
	}
	return m
}

// Execute runs one command line and returns the text to show the user.
// Blank lines produce an empty response.
func (m *Manager) Execute(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	h, ok := m.handlers[name]
	if !ok {
		return fmt.Sprintf(messageUnknownCommand, fields[0])
	}
	slog.Debug("command received", "command", name, "args", len(fields)-1)
	out, err := h(ctx, fields[1:])
	if err != nil {
		slog.Warn("command failed", "command", name, "error", err)
		return fmt.Sprintf(messageError, err)
	}
	return out
}

func (m *Manager) handleNew(ctx context.Context, args []string) (string, error) {
	meta, err := m.repo.CreateTranscript(ctx, repository.CreateTranscriptInput{
		Title:     strings.Join(args, " "),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	slog.Info("transcript created", "transcript_id", meta.ID, "title", meta.Title)
	return fmt.Sprintf("created %s (%s)", meta.ID, meta.Title), nil
}

func (m *Manager) handleList(ctx context.Context, _ []string) (string, error) {
	list, err := m.repo.ListMetadata(ctx)
	if err != nil {
		return "", fmt.Errorf("list transcripts: %w", err)
	}
	if len(list) == 0 {
		return messageNoTranscripts, nil
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		audio := "-"
		if s.HasAudio() {
			audio = formatBytes(s.AudioBytes)
		}
		rows = append(rows, []string{
			s.ID,
			s.Title,
			s.CreatedAt.Format(listTimeLayout),
			strings.Join(s.Tags, ", "),
			strconv.Itoa(s.EntryCount),
			audio,
		})
	}
	return RenderTable(
		[]string{"ID", "Title", "Created", "Tags", "Entries", "Audio"},
		rows,
		[]ColumnAlignment{AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight},
	), nil
}

func (m *Manager) handleOpen(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return usage("open"), nil
	}
	ws, err := parseIndex(args[0], "workspace")
	if err != nil {
		return "", err
	}
	meta, err := m.repo.GetMetadata(ctx, args[1])
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.workspaces[ws] = meta.ID
	m.mu.Unlock()
	if err := m.syncOpenSet(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("workspace %d: %s", ws, meta.Title), nil
}

func (m *Manager) handleClose(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return usage("close"), nil
	}
	ws, err := parseIndex(args[0], "workspace")
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	_, open := m.workspaces[ws]
	delete(m.workspaces, ws)
	m.mu.Unlock()
	if !open {
		return fmt.Sprintf("workspace %d is already empty", ws), nil
	}
	if err := m.syncOpenSet(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("workspace %d closed", ws), nil
}

// syncOpenSet pushes the distinct transcripts open in any workspace to the
// playback engine.
func (m *Manager) syncOpenSet(ctx context.Context) error {
	m.mu.Lock()
	seen := make(map[transcript.ID]struct{}, len(m.workspaces))
	open := make([]transcript.ID, 0, len(m.workspaces))
	for _, id := range m.workspaces {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		open = append(open, id)
	}
	m.mu.Unlock()
	sort.Strings(open)
	return m.player.SyncWithOpenSet(ctx, open)
}

// OpenTranscripts returns the workspace assignments.
func (m *Manager) OpenTranscripts() map[int]transcript.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]transcript.ID, len(m.workspaces))
	for ws, id := range m.workspaces {
		out[ws] = id
	}
	return out
}

func (m *Manager) handleRecord(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return usage("record"), nil
	}
	meta, err := m.repo.GetMetadata(ctx, args[0])
	if err != nil {
		return "", err
	}
	if p := m.recorder.Progress(); p.State != recorder.StateIdle {
		return fmt.Sprintf(messageRecordingBusy, p.TranscriptID), nil
	}
	if err := m.recorder.Start(ctx, meta.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf(messageRecordingStarted, meta.Title), nil
}

func (m *Manager) handleStop(_ context.Context, _ []string) (string, error) {
	p := m.recorder.Progress()
	if p.State != recorder.StateStarting && p.State != recorder.StateRecording {
		return messageNotRecording, nil
	}
	m.recorder.Stop()
	return fmt.Sprintf(messageRecordingStopped, p.TranscriptID), nil
}

func (m *Manager) handleStatus(_ context.Context, _ []string) (string, error) {
	p := m.recorder.Progress()
	lines := []string{fmt.Sprintf("recorder: %s", p.State)}
	if p.State != recorder.StateIdle {
		lines = append(lines, fmt.Sprintf("  transcript %s, %d chunks, %d sent, next sequence %d",
			p.TranscriptID, p.Chunks, p.LastSentIndex, p.NextSequence))
		if !p.StartedAt.IsZero() {
			lines = append(lines, fmt.Sprintf("  elapsed %s", time.Since(p.StartedAt).Truncate(time.Second)))
		}
	}
	transportLine := fmt.Sprintf("transport: %s", m.conn.Status())
	if ep := m.conn.Endpoint(); ep != "" {
		transportLine += " " + ep
	}
	if n := m.conn.Attempts(); n > 0 {
		transportLine += fmt.Sprintf(" (retry %d)", n)
	}
	lines = append(lines, transportLine)

	tracks := m.player.ActiveTracks()
	if len(tracks) == 0 {
		lines = append(lines, "playback: idle")
		return strings.Join(lines, "\n"), nil
	}
	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		state := "paused"
		if t.Playing {
			state = "playing"
		}
		end := "-"
		if t.End > 0 {
			end = transcript.FormatTimestamp(t.End.Milliseconds())
		}
		rows = append(rows, []string{
			strconv.Itoa(t.Index),
			t.TranscriptID,
			transcript.FormatTimestamp(t.Position.Milliseconds()),
			end,
			state,
		})
	}
	lines = append(lines, RenderTable(
		[]string{"Track", "Transcript", "Position", "End", "State"},
		rows,
		[]ColumnAlignment{AlignRight, AlignLeft, AlignRight, AlignRight, AlignLeft},
	))
	return strings.Join(lines, "\n"), nil
}

func (m *Manager) handlePlay(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return usage("play"), nil
	}
	entries, err := m.repo.ListEntries(ctx, args[0])
	if err != nil {
		return "", err
	}
	n, err := parseEntryNumber(args[1])
	if err != nil {
		return "", err
	}
	start, end, ok := transcript.SegmentBounds(entries, n-1)
	if !ok {
		return "", fmt.Errorf("entry %d: %w", n, repository.ErrEntryOutOfRange)
	}
	track, err := optionalTrack(args, 2)
	if err != nil {
		return "", err
	}
	return m.play(args[0], playback.SegmentFromMillis(start, end), track)
}

func (m *Manager) handlePlayRange(_ context.Context, args []string) (string, error) {
	if len(args) < 3 || len(args) > 4 {
		return usage("playrange"), nil
	}
	start, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || start < 0 {
		return "", fmt.Errorf("invalid start %q", args[1])
	}
	end, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || end < 0 {
		return "", fmt.Errorf("invalid end %q", args[2])
	}
	track, err := optionalTrack(args, 3)
	if err != nil {
		return "", err
	}
	return m.play(args[0], playback.SegmentFromMillis(start, end), track)
}

func (m *Manager) play(id transcript.ID, seg playback.Segment, track int) (string, error) {
	if err := m.player.PlaySegment(id, seg, track); err != nil {
		if errors.Is(err, playback.ErrNotLoaded) {
			return fmt.Sprintf(messageNotLoaded, id), nil
		}
		return "", err
	}
	span := transcript.FormatTimestamp(seg.Start.Milliseconds()) + " - "
	if seg.End > 0 {
		span += transcript.FormatTimestamp(seg.End.Milliseconds())
	} else {
		span += "end"
	}
	return fmt.Sprintf("track %d: playing %s", track, span), nil
}

func (m *Manager) handlePause(_ context.Context, args []string) (string, error) {
	switch len(args) {
	case 0:
		m.player.PauseAll()
		return "paused all tracks", nil
	case 1:
		track, err := parseIndex(args[0], "track")
		if err != nil {
			return "", err
		}
		m.player.PauseTrack(track)
		return fmt.Sprintf("track %d paused", track), nil
	default:
		return usage("pause"), nil
	}
}

func (m *Manager) handleResume(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return usage("resume"), nil
	}
	track, err := parseIndex(args[0], "track")
	if err != nil {
		return "", err
	}
	if err := m.player.ResumeTrack(track); err != nil {
		return "", err
	}
	return fmt.Sprintf("track %d resumed", track), nil
}

func (m *Manager) handleShow(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return usage("show"), nil
	}
	meta, entries, err := m.load(ctx, args[0])
	if err != nil {
		return "", err
	}
	return string(transcript.RenderText(*meta, entries)), nil
}

func (m *Manager) handleSearch(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return usage("search"), nil
	}
	entries, err := m.repo.ListEntries(ctx, args[0])
	if err != nil {
		return "", err
	}
	query := strings.Join(args[1:], " ")
	hits := transcript.Search(entries, query)

	m.mu.Lock()
	m.cursor = transcript.NewCursor(hits)
	m.cursorID = args[0]
	m.mu.Unlock()

	if len(hits) == 0 {
		return fmt.Sprintf(messageNoMatches, query), nil
	}
	lines := []string{fmt.Sprintf("%d matches for %q", len(hits), query)}
	for _, i := range hits {
		lines = append(lines, formatEntryLine(i, entries[i]))
	}
	return strings.Join(lines, "\n"), nil
}

func (m *Manager) handleNext(ctx context.Context, _ []string) (string, error) {
	return m.step(ctx, (*transcript.Cursor).Next)
}

func (m *Manager) handlePrev(ctx context.Context, _ []string) (string, error) {
	return m.step(ctx, (*transcript.Cursor).Prev)
}

func (m *Manager) step(ctx context.Context, move func(*transcript.Cursor) int) (string, error) {
	m.mu.Lock()
	if m.cursor == nil || m.cursor.Len() == 0 {
		m.mu.Unlock()
		return messageNoSearch, nil
	}
	i := move(m.cursor)
	id := m.cursorID
	m.mu.Unlock()

	entries, err := m.repo.ListEntries(ctx, id)
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(entries) {
		return "", fmt.Errorf("entry %d: %w", i+1, repository.ErrEntryOutOfRange)
	}
	return formatEntryLine(i, entries[i]), nil
}

func (m *Manager) handleEdit(ctx context.Context, args []string) (string, error) {
	if len(args) < 3 {
		return usage("edit"), nil
	}
	entries, err := m.repo.ListEntries(ctx, args[0])
	if err != nil {
		return "", err
	}
	n, err := parseEntryNumber(args[1])
	if err != nil {
		return "", err
	}
	if n > len(entries) {
		return "", fmt.Errorf("entry %d: %w", n, repository.ErrEntryOutOfRange)
	}
	entry := entries[n-1]
	entry.Content = strings.Join(args[2:], " ")
	if err := m.repo.UpdateEntry(ctx, args[0], n-1, entry); err != nil {
		return "", err
	}
	return formatEntryLine(n-1, entry), nil
}

func (m *Manager) handleRemove(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return usage("remove"), nil
	}
	n, err := parseEntryNumber(args[1])
	if err != nil {
		return "", err
	}
	if err := m.repo.RemoveEntry(ctx, args[0], n-1); err != nil {
		return "", err
	}
	return fmt.Sprintf("entry %d removed", n), nil
}

func (m *Manager) handleTitle(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return usage("title"), nil
	}
	if err := m.repo.UpdateTitle(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
		return "", err
	}
	meta, err := m.repo.GetMetadata(ctx, args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("title: %s", meta.Title), nil
}

func (m *Manager) handleTags(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return usage("tags"), nil
	}
	var tags []string
	if len(args) > 1 {
		tags = strings.Split(strings.Join(args[1:], " "), ",")
	}
	if err := m.repo.UpdateTags(ctx, args[0], tags); err != nil {
		return "", err
	}
	meta, err := m.repo.GetMetadata(ctx, args[0])
	if err != nil {
		return "", err
	}
	if len(meta.Tags) == 0 {
		return "tags cleared", nil
	}
	return fmt.Sprintf("tags: %s", strings.Join(meta.Tags, ", ")), nil
}

func (m *Manager) handleDelete(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return usage("delete"), nil
	}
	id := args[0]
	if p := m.recorder.Progress(); p.State != recorder.StateIdle && p.TranscriptID == id {
		return fmt.Sprintf(messageDeleteRecording, id), nil
	}
	if err := m.repo.DeleteTranscript(ctx, id); err != nil {
		return "", err
	}

	m.mu.Lock()
	for ws, open := range m.workspaces {
		if open == id {
			delete(m.workspaces, ws)
		}
	}
	if m.cursorID == id {
		m.cursor = nil
		m.cursorID = ""
	}
	m.mu.Unlock()
	m.player.UnloadResource(id)
	slog.Info("transcript deleted", "transcript_id", id)
	return fmt.Sprintf("deleted %s", id), nil
}

func (m *Manager) handleExport(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return usage("export"), nil
	}
	meta, entries, err := m.load(ctx, args[0])
	if err != nil {
		return "", err
	}
	audio, err := m.repo.GetAudio(ctx, meta.ID)
	if err != nil {
		return "", err
	}
	body, err := archive.Encode(archive.Document{
		Title:     meta.Title,
		CreatedAt: meta.CreatedAt,
		Tags:      meta.Tags,
		Entries:   entries,
		Audio:     audio,
	})
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}
	path := args[1]
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	slog.Info("transcript exported", "transcript_id", meta.ID, "path", path, "archive_bytes", len(body))

	if err := m.webhook.SendArchive(ctx, filepath.Base(path), body); err != nil {
		slog.Error("failed to send archive webhook", "error", err, "transcript_id", meta.ID)
		return fmt.Sprintf(messageWebhookFailed, path, err), nil
	}
	return fmt.Sprintf("exported %s to %s (%s)", meta.Title, path, formatBytes(len(body))), nil
}

func (m *Manager) handleImport(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return usage("import"), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read archive: %w", err)
	}
	doc, err := archive.Decode(data)
	if err != nil {
		return "", fmt.Errorf("decode archive: %w", err)
	}
	meta, err := m.repo.CreateTranscript(ctx, repository.CreateTranscriptInput{
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt,
		Tags:      doc.Tags,
		Entries:   doc.Entries,
		Audio:     doc.Audio,
	})
	if err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	slog.Info("transcript imported", "transcript_id", meta.ID, "path", args[0], "entries", len(doc.Entries))
	return fmt.Sprintf("imported %s as %s (%d entries)", meta.Title, meta.ID, len(doc.Entries)), nil
}

func (m *Manager) handleReconnect(ctx context.Context, _ []string) (string, error) {
	if err := m.conn.Reconnect(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("transport: %s", m.conn.Status()), nil
}

func (m *Manager) handleHelp(_ context.Context, _ []string) (string, error) {
	return helpText(), nil
}

func (m *Manager) load(ctx context.Context, id transcript.ID) (*transcript.Metadata, []transcript.Entry, error) {
	meta, err := m.repo.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries, err := m.repo.ListEntries(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return meta, entries, nil
}

func formatEntryLine(i int, e transcript.Entry) string {
	return fmt.Sprintf("#%d %s %s: %s", i+1, transcript.FormatTimestamp(e.Timing), e.Speaker, e.Content)
}

func parseIndex(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return n, nil
}

func parseEntryNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid entry %q", s)
	}
	return n, nil
}

func optionalTrack(args []string, pos int) (int, error) {
	if len(args) <= pos {
		return 0, nil
	}
	return parseIndex(args[pos], "track")
}

func formatBytes(n int) string {
	return humanize.IBytes(uint64(n))
}
