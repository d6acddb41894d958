package main

import (
	"context"
	"fmt"

	"mixshift/internal/modkit"
	"mixshift/internal/modkit/module"
	"mixshift/internal/platform/config"
	"mixshift/internal/platform/logger"
	"mixshift/internal/platform/store"

	harvestdom "mixshift/internal/services/harvest/domain"
	harvestmod "mixshift/internal/services/harvest/module"
	harvestrepo "mixshift/internal/services/harvest/repo"
	importmod "mixshift/internal/services/importer/module"
)

// wiring is what the commands need from the outside world
type wiring struct {
	Runner  harvestdom.RunnerPort
	Query   harvestdom.QueryPort
	Migrate func(ctx context.Context) error
	Close   func() error
}

// opener builds the wiring; tests swap it for fakes
type opener func(ctx context.Context, o harvestmod.Options) (*wiring, error)

func openWiring(ctx context.Context, o harvestmod.Options) (*wiring, error) {
	l := logger.Get()
	root := config.New()
	st, err := store.Open(ctx, store.FromEnv(root, "mixshift-cron"), store.WithLogger(*l))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	deps := modkit.Deps{Log: *l, Cfg: root, PG: st.PG, CH: st.CH}

	importer := importmod.New(deps)
	harvest := harvestmod.New(deps, module.MustPortsOf[importmod.Ports](importer).Importer, o)
	ports := module.MustPortsOf[harvestmod.Ports](harvest)

	return &wiring{
		Runner: ports.Runner,
		Query:  ports.Query,
		Migrate: func(ctx context.Context) error {
			if err := harvestrepo.Migrate(ctx, st.PG); err != nil {
				return err
			}
			return importmod.Migrate(ctx, deps)
		},
		Close: st.Close,
	}, nil
}
