package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileDevice replays a 16-bit PCM WAV file as if it were being captured
// live, one chunk per interval.
type FileDevice struct {
	path string

	mu      sync.Mutex
	buf     *goaudio.IntBuffer
	stop    chan struct{}
	running bool
}

func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

func (d *FileDevice) Acquire(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buf != nil {
		return nil
	}
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("capture file %s is not a WAV file", d.path)
	}
	if dec.BitDepth != audio.BitDepth {
		return fmt.Errorf("capture file %s has %d-bit samples, want %d", d.path, dec.BitDepth, audio.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decode capture file: %w", err)
	}
	d.buf = buf
	slog.Info("capture file loaded", "path", d.path, "sample_rate", buf.Format.SampleRate, "channels", buf.Format.NumChannels, "frames", buf.NumFrames())
	return nil
}

func (d *FileDevice) Start(interval time.Duration, sink audio.CaptureSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buf == nil {
		return errors.New("capture file is not acquired")
	}
	if d.running {
		return errors.New("capture already running")
	}
	d.running = true
	d.stop = make(chan struct{})
	go d.replay(d.buf, interval, sink, d.stop)
	return nil
}

func (d *FileDevice) replay(buf *goaudio.IntBuffer, interval time.Duration, sink audio.CaptureSink, stop <-chan struct{}) {
	ch := newChunker(buf.Format, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-stop:
			if chunk := ch.flush(); chunk != nil {
				sink.OnChunk(chunk)
			}
			sink.OnStopped()
			return
		case <-ticker.C:
			if pos >= len(buf.Data) {
				continue
			}
			end := min(pos+ch.samplesPerChunk, len(buf.Data))
			for _, chunk := range ch.push(buf.Data[pos:end]) {
				sink.OnChunk(chunk)
			}
			pos = end
		}
	}
}

func (d *FileDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	close(d.stop)
}

func (d *FileDevice) Release() error {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	return nil
}
