// Package module mounts the harvest HTTP endpoints
package module

import (
	_ "embed"

	"mixshift/internal/core/ratelimit"
	"mixshift/internal/modkit"
	"mixshift/internal/modkit/httpkit"
	"mixshift/internal/platform/net/middleware"
	"mixshift/internal/services/harvest/domain"

	hhttp "mixshift/internal/services/api/harvest/http"
)

// OpenAPI is the document served at /openapi.json
//
//go:embed openapi.json
var OpenAPI []byte

// Ports declares the injected harvest ports
type Ports struct {
	Runner domain.RunnerPort
	Query  domain.QueryPort
}

// Module implements modkit.Module
type Module struct {
	deps     modkit.Deps
	ports    Ports
	handlers *hhttp.Handlers
	limiter  *ratelimit.Limiter
}

// New constructs the harvest api module
func New(deps modkit.Deps, p Ports) *Module {
	if p.Runner == nil || p.Query == nil {
		panic("harvest API module requires Runner and Query ports (from services/harvest)")
	}
	opts := FromConfig(deps.Cfg)
	lim := ratelimit.New(ratelimit.Config{Points: opts.RatePoints, Window: opts.RateWindow}, deps.Now(), nil)
	return &Module{
		deps:     deps,
		ports:    p,
		handlers: &hhttp.Handlers{Runner: p.Runner, Query: p.Query},
		limiter:  lim,
	}
}

// Handlers exposes the handler set so callers can wait for detached work
func (m *Module) Handlers() *hhttp.Handlers { return m.handlers }

// Wait blocks until detached runs started over http have finished
func (m *Module) Wait() { m.handlers.Wait() }

// Name implements modkit.Module
func (m *Module) Name() string { return "api.harvest" }

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix implements modkit.Module
func (m *Module) Prefix() string { return "/harvest" }

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.Prefix(), func(rr httpkit.Router) {
		rr.Use(middleware.RateLimit(m.limiter, "harvest"))
		hhttp.Register(rr, m.handlers)
	})
}
