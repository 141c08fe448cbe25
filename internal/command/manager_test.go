package command

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/archive"
	"github.com/Izanyoi/dictadoc-web/internal/playback"
	"github.com/Izanyoi/dictadoc-web/internal/recorder"
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
)

type storedTranscript struct {
	meta    transcript.Metadata
	entries []transcript.Entry
	audio   []byte
}

type mockRepository struct {
	items   map[transcript.ID]*storedTranscript
	order   []transcript.ID
	created int
}

func newMockRepository() *mockRepository {
	return &mockRepository{items: make(map[transcript.ID]*storedTranscript)}
}

func (m *mockRepository) CreateTranscript(_ context.Context, input repository.CreateTranscriptInput) (*transcript.Metadata, error) {
	m.created++
	title := input.Title
	if title == "" {
		title = transcript.DefaultTitle
	}
	id := fmt.Sprintf("t-%d", m.created)
	m.items[id] = &storedTranscript{
		meta:    transcript.Metadata{ID: id, Title: title, CreatedAt: input.CreatedAt, Tags: input.Tags},
		entries: append([]transcript.Entry(nil), input.Entries...),
		audio:   input.Audio,
	}
	m.order = append(m.order, id)
	meta := m.items[id].meta
	return &meta, nil
}

func (m *mockRepository) get(id transcript.ID) (*storedTranscript, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return item, nil
}

func (m *mockRepository) GetMetadata(_ context.Context, id transcript.ID) (*transcript.Metadata, error) {
	item, err := m.get(id)
	if err != nil {
		return nil, err
	}
	meta := item.meta
	return &meta, nil
}

func (m *mockRepository) ListMetadata(_ context.Context) ([]repository.TranscriptSummary, error) {
	var list []repository.TranscriptSummary
	for _, id := range m.order {
		item, ok := m.items[id]
		if !ok {
			continue
		}
		list = append(list, repository.TranscriptSummary{
			Metadata:   item.meta,
			EntryCount: len(item.entries),
			AudioBytes: len(item.audio),
		})
	}
	return list, nil
}

func (m *mockRepository) UpdateTitle(_ context.Context, id transcript.ID, title string) error {
	item, err := m.get(id)
	if err != nil {
		return err
	}
	item.meta.Title = title
	return nil
}

func (m *mockRepository) UpdateTags(_ context.Context, id transcript.ID, tags []string) error {
	item, err := m.get(id)
	if err != nil {
		return err
	}
	item.meta.Tags = nil
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			item.meta.Tags = append(item.meta.Tags, tag)
		}
	}
	return nil
}

func (m *mockRepository) DeleteTranscript(_ context.Context, id transcript.ID) error {
	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepository) AppendEntries(_ context.Context, id transcript.ID, entries []transcript.Entry) error {
	item, err := m.get(id)
	if err != nil {
		return err
	}
	item.entries = append(item.entries, entries...)
	return nil
}

func (m *mockRepository) ListEntries(_ context.Context, id transcript.ID) ([]transcript.Entry, error) {
	item, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return append([]transcript.Entry{}, item.entries...), nil
}

func (m *mockRepository) UpdateEntry(_ context.Context, id transcript.ID, index int, entry transcript.Entry) error {
	item, err := m.get(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(item.entries) {
		return repository.ErrEntryOutOfRange
	}
	item.entries[index] = entry
	return nil
}

func (m *mockRepository) RemoveEntry(_ context.Context, id transcript.ID, index int) error {
	item, err := m.get(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(item.entries) {
		return repository.ErrEntryOutOfRange
	}
	item.entries = append(item.entries[:index], item.entries[index+1:]...)
	return nil
}

func (m *mockRepository) SetAudio(_ context.Context, id transcript.ID, audio []byte) error {
	item, err := m.get(id)
	if err != nil {
		return err
	}
	item.audio = audio
	return nil
}

func (m *mockRepository) GetAudio(_ context.Context, id transcript.ID) ([]byte, error) {
	item, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return item.audio, nil
}

type mockRecorder struct {
	progress   recorder.Progress
	startCalls []transcript.ID
	stopCalls  int
	startErr   error
}

func (m *mockRecorder) Start(_ context.Context, id transcript.ID) error {
	m.startCalls = append(m.startCalls, id)
	if m.startErr != nil {
		return m.startErr
	}
	m.progress = recorder.Progress{State: recorder.StateRecording, TranscriptID: id}
	return nil
}

func (m *mockRecorder) Stop() {
	m.stopCalls++
	m.progress.State = recorder.StateStopping
}

func (m *mockRecorder) Progress() recorder.Progress {
	return m.progress
}

type playCall struct {
	id    transcript.ID
	seg   playback.Segment
	track int
}

type mockPlayer struct {
	loaded    map[transcript.ID]bool
	playCalls []playCall
	syncCalls [][]transcript.ID
	unloaded  []transcript.ID
	paused    []int
	pausedAll int
	resumed   []int
	tracks    []playback.TrackInfo
}

func newMockPlayer() *mockPlayer {
	return &mockPlayer{loaded: make(map[transcript.ID]bool)}
}

func (m *mockPlayer) UnloadResource(id transcript.ID) {
	m.unloaded = append(m.unloaded, id)
	delete(m.loaded, id)
}

func (m *mockPlayer) PlaySegment(id transcript.ID, seg playback.Segment, trackIndex int) error {
	if !m.loaded[id] {
		return playback.ErrNotLoaded
	}
	m.playCalls = append(m.playCalls, playCall{id: id, seg: seg, track: trackIndex})
	return nil
}

func (m *mockPlayer) PauseTrack(trackIndex int) { m.paused = append(m.paused, trackIndex) }
func (m *mockPlayer) PauseAll()                 { m.pausedAll++ }

func (m *mockPlayer) ResumeTrack(trackIndex int) error {
	m.resumed = append(m.resumed, trackIndex)
	return nil
}

func (m *mockPlayer) SyncWithOpenSet(_ context.Context, open []transcript.ID) error {
	m.syncCalls = append(m.syncCalls, open)
	m.loaded = make(map[transcript.ID]bool)
	for _, id := range open {
		m.loaded[id] = true
	}
	return nil
}

func (m *mockPlayer) ActiveTracks() []playback.TrackInfo {
	return m.tracks
}

type mockConnection struct {
	status         transport.Status
	reconnectCalls int
}

func (m *mockConnection) Status() transport.Status { return m.status }
func (m *mockConnection) Endpoint() string         { return "ws://transcriber.test/stream" }
func (m *mockConnection) Attempts() int            { return 0 }

func (m *mockConnection) Reconnect(_ context.Context) error {
	m.reconnectCalls++
	m.status = transport.StatusConnected
	return nil
}

type mockSender struct {
	filenames []string
	bodies    [][]byte
	err       error
}

func (m *mockSender) SendArchive(_ context.Context, filename string, body []byte) error {
	m.filenames = append(m.filenames, filename)
	m.bodies = append(m.bodies, body)
	return m.err
}

type testManager struct {
	*Manager
	repo     *mockRepository
	recorder *mockRecorder
	player   *mockPlayer
	conn     *mockConnection
	sender   *mockSender
}

func newTestManager() *testManager {
	repo := newMockRepository()
	rec := &mockRecorder{}
	player := newMockPlayer()
	conn := &mockConnection{}
	sender := &mockSender{}
	return &testManager{
		Manager:  NewManager(repo, rec, player, conn, sender),
		repo:     repo,
		recorder: rec,
		player:   player,
		conn:     conn,
		sender:   sender,
	}
}

func (tm *testManager) seed(t *testing.T, title string, entries []transcript.Entry, audio []byte) transcript.ID {
	t.Helper()
	meta, err := tm.repo.CreateTranscript(context.Background(), repository.CreateTranscriptInput{
		Title:     title,
		CreatedAt: time.UnixMilli(1761000000000),
		Entries:   entries,
		Audio:     audio,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return meta.ID
}

var reviewEntries = []transcript.Entry{
	{Speaker: "Alex Rodriguez", Timing: 0, Content: "Good morning everyone, let's start with our quarterly review."},
	{Speaker: "Sarah Chen", Timing: 15000, Content: "I'd like to present the marketing metrics first."},
	{Speaker: "Mike Johnson", Timing: 45000, Content: "From the engineering side, we deployed three major features."},
}

func TestExecute_UnknownAndBlank(t *testing.T) {
	tm := newTestManager()
	if got := tm.Execute(context.Background(), "   "); got != "" {
		t.Fatalf("expected empty response, got %q", got)
	}
	if got := tm.Execute(context.Background(), "dance"); !strings.Contains(got, `unknown command "dance"`) {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestNewAndList(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()

	if got := tm.Execute(ctx, "list"); got != messageNoTranscripts {
		t.Fatalf("unexpected empty list response: %q", got)
	}
	got := tm.Execute(ctx, "new Quarterly review")
	if !strings.Contains(got, "t-1") || !strings.Contains(got, "Quarterly review") {
		t.Fatalf("unexpected new response: %q", got)
	}

	list := tm.Execute(ctx, "list")
	for _, want := range []string{"ID", "Title", "t-1", "Quarterly review"} {
		if !strings.Contains(list, want) {
			t.Fatalf("list missing %q:\n%s", want, list)
		}
	}
}

func TestOpenAndCloseSyncOpenSet(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	a := tm.seed(t, "A", nil, []byte("a"))
	b := tm.seed(t, "B", nil, []byte("b"))

	tm.Execute(ctx, "open 0 "+a)
	tm.Execute(ctx, "open 1 "+b)
	tm.Execute(ctx, "open 2 "+a)
	last := tm.player.syncCalls[len(tm.player.syncCalls)-1]
	if len(last) != 2 || last[0] != a || last[1] != b {
		t.Fatalf("unexpected open set: %#v", last)
	}

	tm.Execute(ctx, "close 1")
	last = tm.player.syncCalls[len(tm.player.syncCalls)-1]
	if len(last) != 1 || last[0] != a {
		t.Fatalf("unexpected open set after close: %#v", last)
	}
	if got := tm.Execute(ctx, "close 1"); !strings.Contains(got, "already empty") {
		t.Fatalf("unexpected response: %q", got)
	}
	if got := tm.Execute(ctx, "open 3 missing"); !strings.Contains(got, repository.ErrNotFound.Error()) {
		t.Fatalf("expected not found error, got %q", got)
	}
	if got := tm.Execute(ctx, "open x "+a); !strings.Contains(got, "invalid workspace") {
		t.Fatalf("expected invalid workspace, got %q", got)
	}
}

func TestRecordAndStop(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Standup", nil, nil)

	if got := tm.Execute(ctx, "stop"); got != messageNotRecording {
		t.Fatalf("unexpected stop response: %q", got)
	}
	if got := tm.Execute(ctx, "record "+id); !strings.Contains(got, "recording into Standup") {
		t.Fatalf("unexpected record response: %q", got)
	}
	if got := tm.Execute(ctx, "record "+id); !strings.Contains(got, "already in progress") {
		t.Fatalf("unexpected busy response: %q", got)
	}
	if len(tm.recorder.startCalls) != 1 {
		t.Fatalf("expected one start call, got %d", len(tm.recorder.startCalls))
	}
	tm.Execute(ctx, "stop")
	if tm.recorder.stopCalls != 1 {
		t.Fatalf("expected one stop call, got %d", tm.recorder.stopCalls)
	}
}

func TestRecord_SurfacesDeviceUnavailable(t *testing.T) {
	tm := newTestManager()
	tm.recorder.startErr = recorder.ErrDeviceUnavailable
	id := tm.seed(t, "x", nil, nil)
	got := tm.Execute(context.Background(), "record "+id)
	if !strings.Contains(got, recorder.ErrDeviceUnavailable.Error()) {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestPlay_UsesEntryBounds(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Review", reviewEntries, []byte("audio"))

	if got := tm.Execute(ctx, "play "+id+" 2"); !strings.Contains(got, "not loaded") {
		t.Fatalf("expected not loaded response, got %q", got)
	}

	tm.Execute(ctx, "open 0 "+id)
	got := tm.Execute(ctx, "play "+id+" 2 1")
	if !strings.Contains(got, "track 1: playing 00:00:15 - 00:00:45") {
		t.Fatalf("unexpected play response: %q", got)
	}
	call := tm.player.playCalls[0]
	if call.track != 1 || call.seg.Start != 15*time.Second || call.seg.End != 45*time.Second {
		t.Fatalf("unexpected play call: %#v", call)
	}

	got = tm.Execute(ctx, "play "+id+" 3")
	if !strings.Contains(got, "00:00:45 - end") {
		t.Fatalf("expected unbounded last segment, got %q", got)
	}
	if got := tm.Execute(ctx, "play "+id+" 4"); !strings.Contains(got, repository.ErrEntryOutOfRange.Error()) {
		t.Fatalf("expected out of range, got %q", got)
	}
}

func TestPlayRangePauseResume(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Review", reviewEntries, []byte("audio"))
	tm.Execute(ctx, "open 0 "+id)

	tm.Execute(ctx, "playrange "+id+" 1000 2000 2")
	call := tm.player.playCalls[0]
	if call.track != 2 || call.seg.Start != time.Second || call.seg.End != 2*time.Second {
		t.Fatalf("unexpected play call: %#v", call)
	}
	tm.Execute(ctx, "pause 2")
	tm.Execute(ctx, "pause")
	tm.Execute(ctx, "resume 2")
	if len(tm.player.paused) != 1 || tm.player.paused[0] != 2 || tm.player.pausedAll != 1 {
		t.Fatalf("unexpected pause calls: %#v %d", tm.player.paused, tm.player.pausedAll)
	}
	if len(tm.player.resumed) != 1 || tm.player.resumed[0] != 2 {
		t.Fatalf("unexpected resume calls: %#v", tm.player.resumed)
	}
}

func TestSearchNextPrev(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Review", reviewEntries, nil)

	if got := tm.Execute(ctx, "next"); got != messageNoSearch {
		t.Fatalf("unexpected response: %q", got)
	}
	got := tm.Execute(ctx, "search "+id+" the")
	if !strings.Contains(got, "2 matches") {
		t.Fatalf("unexpected search response: %q", got)
	}
	if got := tm.Execute(ctx, "next"); !strings.HasPrefix(got, "#3 ") {
		t.Fatalf("unexpected next: %q", got)
	}
	if got := tm.Execute(ctx, "next"); !strings.HasPrefix(got, "#2 ") {
		t.Fatalf("expected wrap to first hit, got %q", got)
	}
	if got := tm.Execute(ctx, "prev"); !strings.HasPrefix(got, "#3 ") {
		t.Fatalf("expected wrap to last hit, got %q", got)
	}
	if got := tm.Execute(ctx, "search "+id+" nothing-like-this"); !strings.Contains(got, "no entries match") {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestEditRemoveTitleTags(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Review", reviewEntries, nil)

	got := tm.Execute(ctx, "edit "+id+" 1 Good morning all")
	if !strings.Contains(got, "Alex Rodriguez: Good morning all") {
		t.Fatalf("unexpected edit response: %q", got)
	}
	tm.Execute(ctx, "remove "+id+" 2")
	entries := tm.repo.items[id].entries
	if len(entries) != 2 || entries[1].Speaker != "Mike Johnson" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	if entries[0].Timing != 0 || entries[0].Speaker != "Alex Rodriguez" {
		t.Fatalf("edit must keep speaker and timing: %#v", entries[0])
	}

	if got := tm.Execute(ctx, "title "+id+" Q3 review"); got != "title: Q3 review" {
		t.Fatalf("unexpected title response: %q", got)
	}
	if got := tm.Execute(ctx, "tags "+id+" team, q3"); got != "tags: team, q3" {
		t.Fatalf("unexpected tags response: %q", got)
	}
	if got := tm.Execute(ctx, "tags "+id); got != "tags cleared" {
		t.Fatalf("unexpected tags response: %q", got)
	}
}

func TestDelete(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Review", reviewEntries, []byte("audio"))
	tm.Execute(ctx, "open 0 "+id)

	tm.recorder.progress = recorder.Progress{State: recorder.StateRecording, TranscriptID: id}
	if got := tm.Execute(ctx, "delete "+id); !strings.Contains(got, "while it is recording") {
		t.Fatalf("expected refusal, got %q", got)
	}
	tm.recorder.progress = recorder.Progress{}

	if got := tm.Execute(ctx, "delete "+id); got != "deleted "+id {
		t.Fatalf("unexpected delete response: %q", got)
	}
	if _, ok := tm.repo.items[id]; ok {
		t.Fatal("expected transcript removed from store")
	}
	if len(tm.player.unloaded) != 1 || tm.player.unloaded[0] != id {
		t.Fatalf("expected resource unload, got %#v", tm.player.unloaded)
	}
	if len(tm.OpenTranscripts()) != 0 {
		t.Fatalf("expected workspace cleared, got %#v", tm.OpenTranscripts())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()
	id := tm.seed(t, "Quarterly review", reviewEntries, []byte("RIFFdata"))
	tm.repo.items[id].meta.Tags = []string{"team"}
	path := filepath.Join(t.TempDir(), "review.dictadoc")

	got := tm.Execute(ctx, "export "+id+" "+path)
	if !strings.Contains(got, "exported Quarterly review to "+path) {
		t.Fatalf("unexpected export response: %q", got)
	}
	if len(tm.sender.filenames) != 1 || tm.sender.filenames[0] != "review.dictadoc" {
		t.Fatalf("unexpected webhook uploads: %#v", tm.sender.filenames)
	}
	doc, err := archive.Decode(tm.sender.bodies[0])
	if err != nil {
		t.Fatalf("uploaded archive does not decode: %v", err)
	}
	if doc.Title != "Quarterly review" || len(doc.Entries) != 3 || string(doc.Audio) != "RIFFdata" {
		t.Fatalf("unexpected uploaded document: %#v", doc)
	}

	got = tm.Execute(ctx, "import "+path)
	if !strings.Contains(got, "imported Quarterly review as t-2 (3 entries)") {
		t.Fatalf("unexpected import response: %q", got)
	}
	imported := tm.repo.items["t-2"]
	if imported.meta.Tags[0] != "team" || string(imported.audio) != "RIFFdata" {
		t.Fatalf("unexpected imported transcript: %#v", imported)
	}
	if imported.entries[2] != reviewEntries[2] {
		t.Fatalf("unexpected imported entry: %#v", imported.entries[2])
	}
}

func TestExport_WebhookFailureKeepsFile(t *testing.T) {
	tm := newTestManager()
	tm.sender.err = errors.New("boom")
	id := tm.seed(t, "x", nil, []byte("a"))
	path := filepath.Join(t.TempDir(), "x.dictadoc")

	got := tm.Execute(context.Background(), "export "+id+" "+path)
	if !strings.Contains(got, "upload failed: boom") {
		t.Fatalf("unexpected response: %q", got)
	}
	if got := tm.Execute(context.Background(), "import "+path); !strings.Contains(got, "imported") {
		t.Fatalf("expected exported file to import, got %q", got)
	}
}

func TestImport_RejectsGarbage(t *testing.T) {
	tm := newTestManager()
	got := tm.Execute(context.Background(), "import "+filepath.Join(t.TempDir(), "missing.dictadoc"))
	if !strings.HasPrefix(got, "error: read archive") {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestStatusAndReconnect(t *testing.T) {
	tm := newTestManager()
	ctx := context.Background()

	got := tm.Execute(ctx, "status")
	if !strings.Contains(got, "recorder: idle") || !strings.Contains(got, "transport: disconnected") || !strings.Contains(got, "playback: idle") {
		t.Fatalf("unexpected status: %q", got)
	}

	tm.player.tracks = []playback.TrackInfo{{Index: 1, TranscriptID: "t-9", Position: 3 * time.Second, End: 10 * time.Second, Playing: true}}
	tm.recorder.progress = recorder.Progress{State: recorder.StateRecording, TranscriptID: "t-9", Chunks: 4, LastSentIndex: 2, NextSequence: 1}
	got = tm.Execute(ctx, "status")
	for _, want := range []string{"recorder: recording", "4 chunks", "t-9", "00:00:03", "playing"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status missing %q:\n%s", want, got)
		}
	}

	if got := tm.Execute(ctx, "reconnect"); got != "transport: connected" {
		t.Fatalf("unexpected reconnect response: %q", got)
	}
}
