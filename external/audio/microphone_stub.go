//go:build !portaudio

package audio

import (
	"context"
	"errors"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
)

var errNoMicrophone = errors.New("built without portaudio support; rebuild with -tags portaudio or set CAPTURE_FILE")

type unavailableMicrophone struct{}

func NewMicrophone(_ *config.Config) audio.CaptureDevice {
	return &unavailableMicrophone{}
}

func (m *unavailableMicrophone) Acquire(_ context.Context) error {
	return errNoMicrophone
}

func (m *unavailableMicrophone) Start(_ time.Duration, _ audio.CaptureSink) error {
	return errNoMicrophone
}

func (m *unavailableMicrophone) Stop() {}

func (m *unavailableMicrophone) Release() error {
	return nil
}
