package router

import (
	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Router, error) {
		repo := do.MustInvoke[repository.Repository](i)
		channel := do.MustInvoke[*transport.Channel](i)
		return NewRouter(repo, channel), nil
	})
}
