package transport

import (
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transport.Dialer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewWebsocketDialer(cfg.DialTimeout), nil
	})
}
