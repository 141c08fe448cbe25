package playback

import (
	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		loader := do.MustInvoke[audio.ClipLoader](i)
		repo := do.MustInvoke[repository.Repository](i)
		return NewEngine(cfg, loader, repo), nil
	})
}
