package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
)

var errClipClosed = errors.New("clip is closed")

// VirtualClipLoader loads clips that play on the wall clock without any
// sound output. Position behaves as it would on a real speaker.
type VirtualClipLoader struct {
	now func() time.Time
}

func NewVirtualClipLoader() *VirtualClipLoader {
	return &VirtualClipLoader{now: time.Now}
}

func (l *VirtualClipLoader) Load(data []byte) (audio.Clip, error) {
	d, err := audio.Duration(data)
	if err != nil {
		return nil, fmt.Errorf("load clip: %w", err)
	}
	return &virtualClip{
		duration: d,
		now:      l.now,
		voices:   make(map[*virtualVoice]struct{}),
	}, nil
}

type virtualClip struct {
	duration time.Duration
	now      func() time.Time

	mu     sync.Mutex
	voices map[*virtualVoice]struct{}
	closed bool
}

func (c *virtualClip) NewVoice() (audio.Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClipClosed
	}
	v := &virtualVoice{clip: c}
	c.voices[v] = struct{}{}
	return v, nil
}

func (c *virtualClip) Duration() time.Duration {
	return c.duration
}

func (c *virtualClip) Close() error {
	c.mu.Lock()
	voices := make([]*virtualVoice, 0, len(c.voices))
	for v := range c.voices {
		voices = append(voices, v)
	}
	c.closed = true
	c.mu.Unlock()
	for _, v := range voices {
		v.Close()
	}
	return nil
}

func (c *virtualClip) forget(v *virtualVoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voices, v)
}

type virtualVoice struct {
	clip *virtualClip

	mu        sync.Mutex
	offset    time.Duration
	startedAt time.Time
	playing   bool
	closed    bool
}

func (v *virtualVoice) Seek(pos time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errClipClosed
	}
	v.offset = min(max(pos, 0), v.clip.duration)
	v.startedAt = v.clip.now()
	return nil
}

func (v *virtualVoice) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.playing {
		return
	}
	v.playing = true
	v.startedAt = v.clip.now()
}

func (v *virtualVoice) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pauseLocked()
}

func (v *virtualVoice) pauseLocked() {
	if !v.playing {
		return
	}
	v.offset = v.positionLocked()
	v.playing = false
}

func (v *virtualVoice) Position() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionLocked()
}

func (v *virtualVoice) positionLocked() time.Duration {
	pos := v.offset
	if v.playing {
		pos += v.clip.now().Sub(v.startedAt)
	}
	return min(pos, v.clip.duration)
}

func (v *virtualVoice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing && v.positionLocked() < v.clip.duration
}

func (v *virtualVoice) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.pauseLocked()
	v.closed = true
	v.mu.Unlock()
	v.clip.forget(v)
}
