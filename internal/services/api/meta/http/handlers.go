// Package http provides meta endpoints
package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"mixshift/internal/core/version"
	"mixshift/internal/modkit/httpkit"
	"mixshift/internal/platform/clock"
	phttp "mixshift/internal/platform/net/http"
)

// Pinger is satisfied by adapters that expose Ping
type Pinger interface {
	Ping(context.Context) error
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	Clock       clock.Clock
	PG          any
	CH          any
}

type handlers struct {
	deps Deps
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	h := &handlers{deps: d}

	r.Get("/ready", phttp.Handle(h.ready))
	r.Get("/version", phttp.Handle(h.version))
	r.Get("/service", phttp.Handle(h.service))
}

// ReadyCheck describes a single dependency check
type ReadyCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok fail skipped unknown
	Error  string `json:"error,omitempty"`
}

// ReadyResponse summarizes readiness
type ReadyResponse struct {
	Status string       `json:"status"` // ok degraded fail
	Checks []ReadyCheck `json:"checks"`
	Now    string       `json:"now"`
}

// ServiceResponse describes service info
type ServiceResponse struct {
	Name    string `json:"name"`
	Started string `json:"started"`
	Uptime  int64  `json:"uptime"`
}

// @Summary Readiness probe with dependency checks
// @Tags Meta
// @Produce json
// @Success 200 {object} ReadyResponse "ok"
// @Failure 503 {object} ReadyResponse "postgres unreachable"
// @Router /meta/ready [get]
func (h *handlers) ready(r *stdhttp.Request) phttp.Response {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	check := func(name string, c any) ReadyCheck {
		if c == nil {
			return ReadyCheck{Name: name, Status: "skipped"}
		}
		if p, ok := c.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return ReadyCheck{Name: name, Status: "fail", Error: err.Error()}
			}
			return ReadyCheck{Name: name, Status: "ok"}
		}
		return ReadyCheck{Name: name, Status: "unknown"}
	}

	pg := check("pg", h.deps.PG)
	ch := check("ch", h.deps.CH)

	// clickhouse is optional; only postgres decides fail
	overall := "ok"
	switch {
	case pg.Status == "fail":
		overall = "fail"
	case pg.Status != "ok" || ch.Status == "fail":
		overall = "degraded"
	}

	resp := ReadyResponse{
		Status: overall,
		Checks: []ReadyCheck{pg, ch},
		Now:    h.deps.Clock.Now().UTC().Format(time.RFC3339),
	}
	if overall == "fail" {
		return phttp.Response{Status: stdhttp.StatusServiceUnavailable, Body: resp}
	}
	return phttp.OK(resp)
}

// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 {object} version.BuildInfo "ok"
// @Router /meta/version [get]
func (h *handlers) version(_ *stdhttp.Request) phttp.Response {
	return phttp.OK(version.Info(h.deps.ServiceName))
}

// @Summary Service info and uptime
// @Tags Meta
// @Produce json
// @Success 200 {object} ServiceResponse "ok"
// @Router /meta/service [get]
func (h *handlers) service(_ *stdhttp.Request) phttp.Response {
	uptime := h.deps.Clock.Now().Sub(h.deps.StartedAt)
	return phttp.OK(ServiceResponse{
		Name:    h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(uptime / time.Second),
	})
}
