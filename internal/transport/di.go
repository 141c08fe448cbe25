package transport

import (
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Channel, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dialer := do.MustInvoke[Dialer](i)
		return NewChannel(cfg, dialer), nil
	})
}
