//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	goaudio "github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

const (
	framesPerBuffer = 1024
	readRetryDelay  = 10 * time.Millisecond
)

type Microphone struct {
	format *goaudio.Format

	mu      sync.Mutex
	stream  *portaudio.Stream
	in      []int16
	stop    chan struct{}
	running bool
}

func NewMicrophone(cfg *config.Config) audio.CaptureDevice {
	return &Microphone{
		format: &goaudio.Format{
			NumChannels: cfg.CaptureChannels,
			SampleRate:  cfg.CaptureSampleRate,
		},
	}
}

func (m *Microphone) Acquire(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	in := make([]int16, framesPerBuffer*m.format.NumChannels)
	stream, err := portaudio.OpenDefaultStream(m.format.NumChannels, 0, float64(m.format.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open default input stream: %w", err)
	}
	m.stream = stream
	m.in = in
	slog.Info("microphone acquired", "sample_rate", m.format.SampleRate, "channels", m.format.NumChannels)
	return nil
}

func (m *Microphone) Start(interval time.Duration, sink audio.CaptureSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return errors.New("microphone is not acquired")
	}
	if m.running {
		return errors.New("capture already running")
	}
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	m.running = true
	m.stop = make(chan struct{})
	go m.capture(m.stream, m.in, newChunker(m.format, interval), sink, m.stop)
	return nil
}

func (m *Microphone) capture(stream *portaudio.Stream, in []int16, ch *chunker, sink audio.CaptureSink, stop <-chan struct{}) {
	var readErrors int
	for {
		select {
		case <-stop:
			if err := stream.Stop(); err != nil {
				slog.Warn("failed to stop input stream", "error", err)
			}
			if chunk := ch.flush(); chunk != nil {
				sink.OnChunk(chunk)
			}
			sink.OnStopped()
			return
		default:
		}

		if err := stream.Read(); err != nil {
			readErrors++
			if readErrors == 1 || readErrors%100 == 0 {
				slog.Warn("microphone read failed", "error", err, "total_errors", readErrors)
			}
			time.Sleep(readRetryDelay)
			continue
		}
		samples := make([]int, len(in))
		for i, s := range in {
			samples[i] = int(s)
		}
		for _, chunk := range ch.push(samples) {
			sink.OnChunk(chunk)
		}
	}
}

func (m *Microphone) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
}

func (m *Microphone) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	if m.running {
		m.running = false
		close(m.stop)
	}
	err := m.stream.Close()
	m.stream = nil
	m.in = nil
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = termErr
	}
	if err != nil {
		return fmt.Errorf("release microphone: %w", err)
	}
	return nil
}
