// Package playback plays time-bounded segments of transcript audio on
// independent tracks and keeps loaded audio in step with the set of open
// transcripts.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

var ErrNotLoaded = errors.New("audio resource not loaded")

// AudioSource returns the stored audio of a transcript, or nil when it has
// none.
type AudioSource interface {
	GetAudio(ctx context.Context, id transcript.ID) ([]byte, error)
}

// Segment is a range of a clip. A zero End plays to the end of the clip.
type Segment struct {
	Start time.Duration
	End   time.Duration
}

func SegmentFromMillis(start, end int64) Segment {
	return Segment{
		Start: time.Duration(start) * time.Millisecond,
		End:   time.Duration(end) * time.Millisecond,
	}
}

type TrackInfo struct {
	Index        int
	TranscriptID transcript.ID
	Position     time.Duration
	End          time.Duration
	Playing      bool
}

type Engine struct {
	loader       audio.ClipLoader
	source       AudioSource
	pollInterval time.Duration

	mu        sync.Mutex
	resources map[transcript.ID]audio.Clip
	open      map[transcript.ID]struct{}
	tracks    map[int]*track
	monitors  sync.WaitGroup
	running   atomic.Int32
}

type track struct {
	transcriptID transcript.ID
	voice        audio.Voice
	end          time.Duration
	// stop is non-nil while the end-time monitor runs.
	stop chan struct{}
}

func NewEngine(cfg *config.Config, loader audio.ClipLoader, source AudioSource) *Engine {
	return &Engine{
		loader:       loader,
		source:       source,
		pollInterval: cfg.PlaybackPollInterval,
		resources:    make(map[transcript.ID]audio.Clip),
		open:         make(map[transcript.ID]struct{}),
		tracks:       make(map[int]*track),
	}
}

// LoadResource decodes audio and makes it playable. A resource already
// loaded for id is released first.
func (e *Engine) LoadResource(id transcript.ID, data []byte) error {
	clip, err := e.loader.Load(data)
	if err != nil {
		return fmt.Errorf("load audio for %s: %w", id, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installLocked(id, clip)
	return nil
}

// LoadIfOpen loads audio for id only while id is in the open set last
// passed to SyncWithOpenSet, and reports whether it did.
func (e *Engine) LoadIfOpen(id transcript.ID, data []byte) (bool, error) {
	if !e.isOpen(id) {
		return false, nil
	}
	clip, err := e.loader.Load(data)
	if err != nil {
		return false, fmt.Errorf("load audio for %s: %w", id, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.open[id]; !ok {
		if err := clip.Close(); err != nil {
			slog.Warn("failed to close audio resource", "transcript_id", id, "error", err)
		}
		return false, nil
	}
	e.installLocked(id, clip)
	return true, nil
}

func (e *Engine) isOpen(id transcript.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.open[id]
	return ok
}

func (e *Engine) installLocked(id transcript.ID, clip audio.Clip) {
	if old, ok := e.resources[id]; ok {
		e.releaseLocked(id, old)
	}
	e.resources[id] = clip
	slog.Info("audio resource loaded", "transcript_id", id, "duration_ms", clip.Duration().Milliseconds())
}

// UnloadResource stops every track playing id and releases its audio.
func (e *Engine) UnloadResource(id transcript.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	clip, ok := e.resources[id]
	if !ok {
		return
	}
	e.releaseLocked(id, clip)
	delete(e.resources, id)
	slog.Info("audio resource unloaded", "transcript_id", id)
}

func (e *Engine) releaseLocked(id transcript.ID, clip audio.Clip) {
	for idx, tr := range e.tracks {
		if tr.transcriptID == id {
			e.stopTrackLocked(idx)
		}
	}
	if err := clip.Close(); err != nil {
		slog.Warn("failed to close audio resource", "transcript_id", id, "error", err)
	}
}

// PlaySegment plays seg of id's audio on trackIndex, replacing whatever the
// track was playing.
func (e *Engine) PlaySegment(id transcript.ID, seg Segment, trackIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	clip, ok := e.resources[id]
	if !ok {
		slog.Warn("play requested for transcript without loaded audio", "transcript_id", id, "track", trackIndex)
		return ErrNotLoaded
	}
	e.stopTrackLocked(trackIndex)

	voice, err := clip.NewVoice()
	if err != nil {
		return fmt.Errorf("create voice: %w", err)
	}
	if err := voice.Seek(seg.Start); err != nil {
		voice.Close()
		return fmt.Errorf("seek to %s: %w", seg.Start, err)
	}
	voice.Play()
	tr := &track{transcriptID: id, voice: voice, end: seg.End}
	e.tracks[trackIndex] = tr
	e.startMonitorLocked(trackIndex, tr)
	slog.Debug("segment playing", "transcript_id", id, "track", trackIndex, "start_ms", seg.Start.Milliseconds(), "end_ms", seg.End.Milliseconds())
	return nil
}

// PauseTrack pauses a track and cancels its end-time monitor. The paused
// playback can be resumed with ResumeTrack.
func (e *Engine) PauseTrack(trackIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseTrackLocked(trackIndex)
}

func (e *Engine) PauseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for idx := range e.tracks {
		e.pauseTrackLocked(idx)
	}
}

// PauseTranscript pauses every track playing id.
func (e *Engine) PauseTranscript(id transcript.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for idx, tr := range e.tracks {
		if tr.transcriptID == id {
			e.pauseTrackLocked(idx)
		}
	}
}

func (e *Engine) ResumeTrack(trackIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr, ok := e.tracks[trackIndex]
	if !ok {
		return fmt.Errorf("track %d has no playback", trackIndex)
	}
	if tr.stop != nil {
		return nil
	}
	tr.voice.Play()
	e.startMonitorLocked(trackIndex, tr)
	return nil
}

func (e *Engine) pauseTrackLocked(idx int) {
	tr, ok := e.tracks[idx]
	if !ok {
		return
	}
	tr.voice.Pause()
	e.stopMonitorLocked(tr)
}

func (e *Engine) stopTrackLocked(idx int) {
	tr, ok := e.tracks[idx]
	if !ok {
		return
	}
	e.stopMonitorLocked(tr)
	tr.voice.Pause()
	tr.voice.Close()
	delete(e.tracks, idx)
}

func (e *Engine) startMonitorLocked(idx int, tr *track) {
	stop := make(chan struct{})
	tr.stop = stop
	e.monitors.Add(1)
	e.running.Add(1)
	go e.monitor(idx, tr, stop)
}

func (e *Engine) stopMonitorLocked(tr *track) {
	if tr.stop == nil {
		return
	}
	close(tr.stop)
	tr.stop = nil
}

// monitor stops the track once playback reaches the segment end or the
// clip runs out.
func (e *Engine) monitor(idx int, tr *track, stop <-chan struct{}) {
	defer e.monitors.Done()
	defer e.running.Add(-1)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		select {
		case <-stop:
			e.mu.Unlock()
			return
		default:
		}
		reachedEnd := tr.end > 0 && tr.voice.Position() >= tr.end
		if reachedEnd || !tr.voice.Playing() {
			if e.tracks[idx] == tr {
				e.stopTrackLocked(idx)
			}
			e.mu.Unlock()
			slog.Debug("segment finished", "transcript_id", tr.transcriptID, "track", idx, "reached_end", reachedEnd)
			return
		}
		e.mu.Unlock()
	}
}

// SyncWithOpenSet unloads audio of transcripts that are no longer open and
// loads stored audio of newly opened ones.
func (e *Engine) SyncWithOpenSet(ctx context.Context, open []transcript.ID) error {
	want := make(map[transcript.ID]struct{}, len(open))
	for _, id := range open {
		if id != "" {
			want[id] = struct{}{}
		}
	}

	e.mu.Lock()
	e.open = want
	var unload, load []transcript.ID
	for id := range e.resources {
		if _, ok := want[id]; !ok {
			unload = append(unload, id)
		}
	}
	for id := range want {
		if _, ok := e.resources[id]; !ok {
			load = append(load, id)
		}
	}
	e.mu.Unlock()

	for _, id := range unload {
		e.UnloadResource(id)
	}
	var errs []error
	for _, id := range load {
		data, err := e.source.GetAudio(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch audio for %s: %w", id, err))
			continue
		}
		if data == nil {
			continue
		}
		if err := e.LoadResource(id, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) LoadedIDs() []transcript.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]transcript.ID, 0, len(e.resources))
	for id := range e.resources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) ActiveTracks() []TrackInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TrackInfo, 0, len(e.tracks))
	for idx, tr := range e.tracks {
		out = append(out, TrackInfo{
			Index:        idx,
			TranscriptID: tr.transcriptID,
			Position:     tr.voice.Position(),
			End:          tr.end,
			Playing:      tr.stop != nil,
		})
	}
	slices.SortFunc(out, func(a, b TrackInfo) int { return a.Index - b.Index })
	return out
}

// Close stops every track, releases all audio and waits for monitors to
// exit.
func (e *Engine) Close() {
	e.mu.Lock()
	for id, clip := range e.resources {
		e.releaseLocked(id, clip)
		delete(e.resources, id)
	}
	for idx := range e.tracks {
		e.stopTrackLocked(idx)
	}
	e.mu.Unlock()
	e.monitors.Wait()
}
