package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		repo, err := OpenMemory(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript store: %w", err)
		}
		return repo, nil
	})
}
