package config

import (
	"fmt"
	"time"

	internalconfig "github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/caarlos0/env/v11"
)

type envConfig struct {
	Env                    string `env:"ENV" envDefault:"production"`
	TranscriberURL         string `env:"TRANSCRIBER_URL,required"`
	CaptureIntervalMs      int    `env:"CAPTURE_INTERVAL_MS" envDefault:"1000"`
	FlushIntervalMs        int    `env:"FLUSH_INTERVAL_MS" envDefault:"60000"`
	StopTimeoutMs          int    `env:"STOP_TIMEOUT_MS" envDefault:"5000"`
	ReconnectDelayMs       int    `env:"RECONNECT_DELAY_MS" envDefault:"5000"`
	MaxReconnectAttempts   int    `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	DialTimeoutMs          int    `env:"DIAL_TIMEOUT_MS" envDefault:"10000"`
	PlaybackPollIntervalMs int    `env:"PLAYBACK_POLL_INTERVAL_MS" envDefault:"50"`
	CaptureSampleRate      int    `env:"CAPTURE_SAMPLE_RATE" envDefault:"16000"`
	CaptureChannels        int    `env:"CAPTURE_CHANNELS" envDefault:"1"`
	CaptureFile            string `env:"CAPTURE_FILE"`
	ArchiveWebhookURL      string `env:"ARCHIVE_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		TranscriberURL:       raw.TranscriberURL,
		CaptureInterval:      millis(raw.CaptureIntervalMs),
		FlushInterval:        millis(raw.FlushIntervalMs),
		StopTimeout:          millis(raw.StopTimeoutMs),
		ReconnectDelay:       millis(raw.ReconnectDelayMs),
		MaxReconnectAttempts: raw.MaxReconnectAttempts,
		DialTimeout:          millis(raw.DialTimeoutMs),
		PlaybackPollInterval: millis(raw.PlaybackPollIntervalMs),
		CaptureSampleRate:    raw.CaptureSampleRate,
		CaptureChannels:      raw.CaptureChannels,
		CaptureFile:          raw.CaptureFile,
		ArchiveWebhookURL:    raw.ArchiveWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
