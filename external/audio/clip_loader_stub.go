//go:build !speaker

package audio

import (
	"log/slog"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
)

func NewClipLoader(_ *config.Config) audio.ClipLoader {
	slog.Info("speaker output disabled; playback runs on a virtual clock")
	return NewVirtualClipLoader()
}
