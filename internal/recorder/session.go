package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/Izanyoi/dictadoc-web/internal/protocol"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
)

const publishTimeout = 10 * time.Second

var errSessionChanged = errors.New("recording session changed")

type Session struct {
	endpoint        string
	captureInterval time.Duration
	flushInterval   time.Duration
	stopTimeout     time.Duration

	device    audio.CaptureDevice
	transport Transport
	store     AudioStore
	player    AudioPlayer
	now       func() time.Time

	// sendMu orders outbound messages and is taken before mu.
	sendMu sync.Mutex

	mu            sync.Mutex
	state         State
	generation    uint64
	acquired      bool
	finalizing    bool
	transcriptID  transcript.ID
	startedAt     time.Time
	chunks        [][]byte
	lastSentIndex int
	sequence      int
	cancelAcquire context.CancelFunc
	cancelFlush   context.CancelFunc
	stopTimer     *time.Timer
	idle          chan struct{}
}

func NewSession(cfg *config.Config, device audio.CaptureDevice, tr Transport, store AudioStore, player AudioPlayer) *Session {
	idle := make(chan struct{})
	close(idle)
	return &Session{
		endpoint:        cfg.TranscriberURL,
		captureInterval: cfg.CaptureInterval,
		flushInterval:   cfg.FlushInterval,
		stopTimeout:     cfg.StopTimeout,
		device:          device,
		transport:       tr,
		store:           store,
		player:          player,
		now:             time.Now,
		state:           StateIdle,
		idle:            idle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{
		State:         s.state,
		TranscriptID:  s.transcriptID,
		Chunks:        len(s.chunks),
		LastSentIndex: s.lastSentIndex,
		NextSequence:  s.sequence,
		StartedAt:     s.startedAt,
	}
}

// Idle returns a channel that is closed once the session is idle again.
func (s *Session) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// Start begins recording into transcript id. It does nothing while another
// recording is starting, running, stopping or being cancelled. Device
// acquisition failures are returned as ErrDeviceUnavailable and leave the
// session idle.
func (s *Session) Start(ctx context.Context, id transcript.ID) error {
	s.mu.Lock()
	if s.state != StateIdle {
		slog.Debug("recording start ignored", "state", s.state.String(), "transcript_id", id)
		s.mu.Unlock()
		return nil
	}
	s.generation++
	gen := s.generation
	s.state = StateStarting
	s.transcriptID = id
	s.idle = make(chan struct{})
	acquired := s.acquired
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelAcquire = cancel
	s.mu.Unlock()

	slog.Info("recording start requested", "transcript_id", id)
	if !acquired {
		if err := s.acquire(acquireCtx); err != nil {
			s.mu.Lock()
			aborted := gen != s.generation
			s.cancelAcquire = nil
			s.setIdleLocked()
			s.mu.Unlock()
			if aborted {
				slog.Info("recording start aborted by stop", "transcript_id", id)
				return ErrStartAborted
			}
			slog.Error("capture device acquisition failed", "transcript_id", id, "error", err)
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	s.mu.Lock()
	s.cancelAcquire = nil
	if gen != s.generation || s.state != StateStarting {
		// Start is refused while cancelling, so the device is still ours to
		// release.
		s.mu.Unlock()
		slog.Info("recording start aborted by stop", "transcript_id", id)
		if !acquired {
			s.releaseAcquired()
		}
		s.mu.Lock()
		s.setIdleLocked()
		s.mu.Unlock()
		return ErrStartAborted
	}
	s.acquired = true

	s.startedAt = s.now()
	s.chunks = nil
	s.lastSentIndex = 0
	s.sequence = 0
	s.state = StateRecording
	if err := s.device.Start(s.captureInterval, &captureSink{session: s, generation: gen}); err != nil {
		s.acquired = false
		s.setIdleLocked()
		s.mu.Unlock()
		slog.Error("capture start failed", "transcript_id", id, "error", err)
		s.releaseAcquired()
		return fmt.Errorf("%w: start capture: %v", ErrDeviceUnavailable, err)
	}
	flushCtx, stopFlush := context.WithCancel(context.Background())
	s.cancelFlush = stopFlush
	s.mu.Unlock()

	go s.flushLoop(flushCtx, gen)
	go s.connect(id)
	slog.Info("recording started", "transcript_id", id, "capture_interval_ms", s.captureInterval.Milliseconds(), "flush_interval_ms", s.flushInterval.Milliseconds())
	return nil
}

// acquire opens the capture device, retrying once after re-initializing
// it.
func (s *Session) acquire(ctx context.Context) error {
	err := s.device.Acquire(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	slog.Warn("capture device acquisition failed; re-initializing once", "error", err)
	if releaseErr := s.device.Release(); releaseErr != nil {
		slog.Debug("capture device release failed", "error", releaseErr)
	}
	return s.device.Acquire(ctx)
}

func (s *Session) connect(id transcript.ID) {
	if err := s.transport.Connect(context.Background(), s.endpoint); err != nil {
		slog.Warn("transcriber connection failed; audio is kept locally", "transcript_id", id, "error", err)
	}
}

// Stop ends the current recording. Finalization happens once the device
// reports it has stopped, or after the stop timeout. Stop during device
// acquisition cancels the pending start; the session stays busy until the
// acquisition has returned.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateStarting:
		s.generation++
		s.state = StateCancelling
		cancel := s.cancelAcquire
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		slog.Info("recording start cancelled")
	case StateRecording:
		s.state = StateStopping
		gen := s.generation
		id := s.transcriptID
		s.stopTimer = time.AfterFunc(s.stopTimeout, func() {
			slog.Warn("capture device did not report stop in time; finalizing", "timeout_ms", s.stopTimeout.Milliseconds())
			s.finalize(gen)
		})
		s.mu.Unlock()
		slog.Info("recording stop requested", "transcript_id", id)
		s.device.Stop()
	default:
		state := s.state
		s.mu.Unlock()
		slog.Debug("recording stop ignored", "state", state.String())
	}
}

// Close stops any recording and releases the capture device.
func (s *Session) Close(ctx context.Context) error {
	s.Stop()
	select {
	case <-s.Idle():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.releaseDevice()
	return nil
}

func (s *Session) releaseDevice() {
	s.mu.Lock()
	acquired := s.acquired
	s.acquired = false
	s.mu.Unlock()
	if acquired {
		s.releaseAcquired()
	}
}

func (s *Session) releaseAcquired() {
	if err := s.device.Release(); err != nil {
		slog.Warn("capture device release failed", "error", err)
	}
}

func (s *Session) onChunk(gen uint64, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.finalizing || (s.state != StateRecording && s.state != StateStopping) {
		return
	}
	s.chunks = append(s.chunks, chunk)
}

func (s *Session) flushLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(gen)
		}
	}
}

func (s *Session) flush(gen uint64) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	_ = s.sendPending(gen, StateRecording)
}

// sendPending sends every chunk after lastSentIndex as one message. The
// network write happens outside mu. The index and the sequence only
// advance when the send succeeds, so unsent chunks go out with the next
// flush. Callers hold sendMu.
func (s *Session) sendPending(gen uint64, want State) error {
	s.mu.Lock()
	if gen != s.generation || s.state != want {
		s.mu.Unlock()
		return errSessionChanged
	}
	if s.lastSentIndex >= len(s.chunks) {
		s.mu.Unlock()
		return nil
	}
	id := s.transcriptID
	seq := s.sequence
	from, end := s.lastSentIndex, len(s.chunks)
	payload := bytes.Join(s.chunks[from:end], nil)
	s.mu.Unlock()

	msg, err := protocol.EncodeAudio(seq, payload, s.now())
	if err != nil {
		return err
	}
	if err := s.transport.Send(msg); err != nil {
		slog.Warn("audio flush failed; chunks retained", "transcript_id", id, "sequence", seq, "pending_chunks", end-from, "error", err)
		return err
	}
	slog.Debug("audio flushed", "transcript_id", id, "sequence", seq, "chunks", end-from)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return errSessionChanged
	}
	s.lastSentIndex = end
	s.sequence = seq + 1
	return nil
}

func (s *Session) finalize(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateStopping || s.finalizing {
		s.mu.Unlock()
		return
	}
	s.finalizing = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	if s.cancelFlush != nil {
		s.cancelFlush()
		s.cancelFlush = nil
	}

	id := s.transcriptID
	s.mu.Unlock()

	// No chunk is accepted once finalizing is set.
	s.sendMu.Lock()
	if err := s.sendPending(gen, StateStopping); err == nil {
		s.sendEnd(gen)
	}
	s.sendMu.Unlock()

	s.mu.Lock()
	chunks := s.chunks
	s.mu.Unlock()

	s.transport.Disconnect()

	if len(chunks) > 0 {
		s.publish(id, bytes.Join(chunks, nil))
	} else {
		slog.Info("recording produced no audio", "transcript_id", id)
	}

	s.mu.Lock()
	s.finalizing = false
	s.chunks = nil
	s.setIdleLocked()
	s.mu.Unlock()
	slog.Info("recording finalized", "transcript_id", id, "chunks", len(chunks))
}

// sendEnd sends the end marker with the sequence after the last audio
// message. Callers hold sendMu.
func (s *Session) sendEnd(gen uint64) {
	s.mu.Lock()
	id := s.transcriptID
	seq := s.sequence
	s.mu.Unlock()

	msg, err := protocol.EncodeEnd(seq, s.now())
	if err != nil {
		slog.Error("failed to encode end message", "error", err)
		return
	}
	if err := s.transport.Send(msg); err != nil {
		slog.Warn("end message not sent", "transcript_id", id, "sequence", seq, "error", err)
		return
	}
	s.mu.Lock()
	if gen == s.generation {
		s.sequence = seq + 1
	}
	s.mu.Unlock()
}

func (s *Session) publish(id transcript.ID, recording []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.store.SetAudio(ctx, id, recording); err != nil {
		slog.Error("failed to store recording", "transcript_id", id, "error", err)
	}
	loaded, err := s.player.LoadIfOpen(id, recording)
	if err != nil {
		slog.Error("failed to load recording for playback", "transcript_id", id, "error", err)
		return
	}
	if !loaded {
		slog.Debug("recording not loaded for playback; transcript is not open", "transcript_id", id)
	}
}

func (s *Session) setIdleLocked() {
	s.state = StateIdle
	select {
	case <-s.idle:
	default:
		close(s.idle)
	}
}

type captureSink struct {
	session    *Session
	generation uint64
}

func (c *captureSink) OnChunk(chunk []byte) {
	c.session.onChunk(c.generation, chunk)
}

func (c *captureSink) OnStopped() {
	c.session.finalize(c.generation)
}
