package audio

import (
	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.CaptureDevice, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.CaptureFile != "" {
			return NewFileDevice(cfg.CaptureFile), nil
		}
		return NewMicrophone(cfg), nil
	})
	do.Provide(injector, func(i do.Injector) (audio.ClipLoader, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewClipLoader(cfg), nil
	})
}
