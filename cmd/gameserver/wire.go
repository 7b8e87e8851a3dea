//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/cory-johannsen/derby/internal/config"
)

func initializeApp(ctx context.Context, cfg config.Config) (*App, func(), error) {
	wire.Build(providerSet)
	return nil, nil, nil
}
