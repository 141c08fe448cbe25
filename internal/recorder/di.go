package recorder

import (
	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/Izanyoi/dictadoc-web/internal/playback"
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Session, error) {
		cfg := do.MustInvoke[*config.Config](i)
		device := do.MustInvoke[audio.CaptureDevice](i)
		channel := do.MustInvoke[*transport.Channel](i)
		repo := do.MustInvoke[repository.Repository](i)
		engine := do.MustInvoke[*playback.Engine](i)
		return NewSession(cfg, device, channel, repo, engine), nil
	})
}
