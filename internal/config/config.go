package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Env                  string
	TranscriberURL       string
	CaptureInterval      time.Duration
	FlushInterval        time.Duration
	StopTimeout          time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration
	PlaybackPollInterval time.Duration
	CaptureSampleRate    int
	CaptureChannels      int
	CaptureFile          string
	ArchiveWebhookURL    string
}

func (c *Config) Validate() error {
	if c.TranscriberURL == "" {
		return fmt.Errorf("TRANSCRIBER_URL is required")
	}
	u, err := url.Parse(c.TranscriberURL)
	if err != nil {
		return fmt.Errorf("TRANSCRIBER_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("TRANSCRIBER_URL must use ws or wss, got %q", u.Scheme)
	}
	for _, d := range c.durationChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.name, d.value.Milliseconds())
		}
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.CaptureSampleRate <= 0 {
		return fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive, got %d", c.CaptureSampleRate)
	}
	if c.CaptureChannels != 1 && c.CaptureChannels != 2 {
		return fmt.Errorf("CAPTURE_CHANNELS must be 1 or 2, got %d", c.CaptureChannels)
	}
	return nil
}

type durationField struct {
	name  string
	value time.Duration
}

func (c *Config) durationChecks() []durationField {
	return []durationField{
		{name: "CAPTURE_INTERVAL_MS", value: c.CaptureInterval},
		{name: "FLUSH_INTERVAL_MS", value: c.FlushInterval},
		{name: "STOP_TIMEOUT_MS", value: c.StopTimeout},
		{name: "RECONNECT_DELAY_MS", value: c.ReconnectDelay},
		{name: "DIAL_TIMEOUT_MS", value: c.DialTimeout},
		{name: "PLAYBACK_POLL_INTERVAL_MS", value: c.PlaybackPollInterval},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
