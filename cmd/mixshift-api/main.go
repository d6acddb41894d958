// @title         mixshift API
// @version       0.1.0
// @description   Start runs, inspect and redrive report tasks

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"mixshift/internal/core/version"
	"mixshift/internal/platform/config"
	"mixshift/internal/platform/logger"
	phttp "mixshift/internal/platform/net/http"
	"mixshift/internal/platform/net/middleware"
	"mixshift/internal/platform/store"

	"mixshift/internal/services/api"
)

func main() {
	logger.Init(logger.FromEnv())
	l := logger.Get()

	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.FromEnv(root, "mixshift-api"), store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	l.Info().Interface("build", version.Info("mixshift-api")).Msg("starting")

	srv := phttp.NewServer(apiCfg.MayPort("PORT", 4000), func(m *chi.Mux) {
		m.Use(middleware.Heartbeat("/health"))
	})

	mods := api.Mount(srv.Router(), api.Options{
		Config:        root,
		Service:       "mixshift-api",
		Store:         st,
		Logger:        l,
		EnableSwagger: apiCfg.MayBool("SWAGGER", true),
		CORSOrigins:   apiCfg.MayCSV("CORS_ORIGINS", nil),
		SlowRequest:   apiCfg.MayDuration("SLOW_REQUEST", 2*time.Second),
	})

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
	for _, m := range mods {
		if w, ok := m.(interface{ Wait() }); ok {
			w.Wait()
		}
	}
}
