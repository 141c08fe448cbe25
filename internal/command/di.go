package command

import (
	"github.com/Izanyoi/dictadoc-web/internal/playback"
	"github.com/Izanyoi/dictadoc-web/internal/recorder"
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
	"github.com/Izanyoi/dictadoc-web/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		repo := do.MustInvoke[repository.Repository](i)
		rec := do.MustInvoke[*recorder.Session](i)
		engine := do.MustInvoke[*playback.Engine](i)
		channel := do.MustInvoke[*transport.Channel](i)
		wh := do.MustInvoke[webhook.Sender](i)
		return NewManager(repo, rec, engine, channel, wh), nil
	})
}
