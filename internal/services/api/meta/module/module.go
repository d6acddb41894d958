// Package module wires meta endpoints into the API using a tiny module
package module

import (
	"mixshift/internal/modkit"
	"mixshift/internal/modkit/httpkit"
	str "mixshift/internal/platform/strings"

	metahttp "mixshift/internal/services/api/meta/http"
)

// Module implements the modkit.Module interface
type Module struct {
	deps    modkit.Deps
	name    string
	prefix  string
	service string
}

// New constructs a meta module reporting as service
func New(deps modkit.Deps, service string) *Module {
	return &Module{
		deps:    deps,
		name:    "meta",
		prefix:  "/meta",
		service: str.MustString(service, "meta service name"),
	}
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	clk := m.deps.Now()
	d := metahttp.Deps{ServiceName: m.service, StartedAt: clk.Now(), Clock: clk, PG: m.deps.PG}
	// a nil interface keeps the check "skipped" rather than "unknown"
	if m.deps.CH != nil {
		d.CH = m.deps.CH
	}
	r.Route(m.Prefix(), func(rr httpkit.Router) {
		metahttp.Register(rr, d)
	})
}

// Name implements the modkit.Module interface
func (m *Module) Name() string { return str.MustString(m.name, "meta") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
