//go:build speaker

package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

const (
	speakerBufferDuration = 100 * time.Millisecond
	resampleQuality       = 4
)

type SpeakerClipLoader struct {
	rate     beep.SampleRate
	initOnce sync.Once
	initErr  error
}

func NewClipLoader(cfg *config.Config) audio.ClipLoader {
	return &SpeakerClipLoader{rate: beep.SampleRate(cfg.CaptureSampleRate)}
}

func (l *SpeakerClipLoader) init() error {
	l.initOnce.Do(func() {
		l.initErr = speaker.Init(l.rate, l.rate.N(speakerBufferDuration))
		if l.initErr == nil {
			slog.Info("speaker initialized", "sample_rate", int(l.rate))
		}
	})
	return l.initErr
}

func (l *SpeakerClipLoader) Load(data []byte) (audio.Clip, error) {
	if err := l.init(); err != nil {
		return nil, fmt.Errorf("initialize speaker: %w", err)
	}
	normalized, err := audio.NormalizeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("load clip: %w", err)
	}
	streamer, format, err := wav.Decode(bytes.NewReader(normalized))
	if err != nil {
		return nil, fmt.Errorf("decode clip: %w", err)
	}
	defer func() {
		_ = streamer.Close()
	}()
	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	return &speakerClip{
		buffer:     buffer,
		outputRate: l.rate,
		voices:     make(map[*speakerVoice]struct{}),
	}, nil
}

type speakerClip struct {
	buffer     *beep.Buffer
	outputRate beep.SampleRate

	mu     sync.Mutex
	voices map[*speakerVoice]struct{}
	closed bool
}

func (c *speakerClip) NewVoice() (audio.Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClipClosed
	}
	seeker := c.buffer.Streamer(0, c.buffer.Len())
	var out beep.Streamer = seeker
	if rate := c.buffer.Format().SampleRate; rate != c.outputRate {
		out = beep.Resample(resampleQuality, rate, c.outputRate, seeker)
	}
	v := &speakerVoice{
		clip:   c,
		rate:   c.buffer.Format().SampleRate,
		seeker: seeker,
		ctrl:   &beep.Ctrl{Streamer: out, Paused: true},
	}
	c.voices[v] = struct{}{}
	return v, nil
}

func (c *speakerClip) Duration() time.Duration {
	return c.buffer.Format().SampleRate.D(c.buffer.Len())
}

func (c *speakerClip) Close() error {
	c.mu.Lock()
	voices := make([]*speakerVoice, 0, len(c.voices))
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

func (c *speakerClip) forget(v *speakerVoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voices, v)
}

// speakerVoice state is guarded by the speaker lock, which the mixer holds
// while streaming.
type speakerVoice struct {
	clip   *speakerClip
	rate   beep.SampleRate
	seeker beep.StreamSeeker
	ctrl   *beep.Ctrl
	mixing bool
	closed bool
}

func (v *speakerVoice) Seek(pos time.Duration) error {
	speaker.Lock()
	defer speaker.Unlock()
	if v.closed {
		return errClipClosed
	}
	n := min(max(v.rate.N(pos), 0), v.seeker.Len())
	if err := v.seeker.Seek(n); err != nil {
		return fmt.Errorf("seek clip: %w", err)
	}
	return nil
}

func (v *speakerVoice) Play() {
	speaker.Lock()
	if v.closed {
		speaker.Unlock()
		return
	}
	v.ctrl.Paused = false
	needsMixer := !v.mixing
	v.mixing = true
	speaker.Unlock()
	if needsMixer {
		speaker.Play(beep.Seq(v.ctrl, beep.Callback(func() {
			v.mixing = false
		})))
	}
}

func (v *speakerVoice) Pause() {
	speaker.Lock()
	defer speaker.Unlock()
	v.ctrl.Paused = true
}

func (v *speakerVoice) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	return v.rate.D(v.seeker.Position())
}

func (v *speakerVoice) Playing() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return v.mixing && !v.ctrl.Paused && v.seeker.Position() < v.seeker.Len()
}

func (v *speakerVoice) Close() {
	speaker.Lock()
	if v.closed {
		speaker.Unlock()
		return
	}
	v.closed = true
	v.ctrl.Paused = true
	v.ctrl.Streamer = nil
	speaker.Unlock()
	v.clip.forget(v)
}
