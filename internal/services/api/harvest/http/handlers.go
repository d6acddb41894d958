// Package http provides http transport for harvest
package http

import (
	"context"
	stdhttp "net/http"
	"strconv"
	"sync"

	"mixshift/internal/core/period"
	"mixshift/internal/modkit/httpkit"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
	phttp "mixshift/internal/platform/net/http"
	"mixshift/internal/platform/net/http/bind"
	"mixshift/internal/services/harvest/domain"
)

// Accepted is the body of every 202 reply
type Accepted struct {
	Message    string `json:"message"`
	WorkUnitID int64  `json:"work_unit_id,omitempty"`
	ReportType string `json:"report_type,omitempty"`
}

// Handlers serves the harvest endpoints. Long work runs detached from the
// request; Wait blocks until it is done
type Handlers struct {
	Runner domain.RunnerPort
	Query  domain.QueryPort

	wg sync.WaitGroup
}

// Register mounts the harvest endpoints
func Register(r httpkit.Router, h *Handlers) {
	r.Post("/runs", phttp.Handle(h.run))
	r.Post("/watchdog", phttp.Handle(h.watchdog))
	r.Post("/imports", phttp.Handle(h.importPending))
	r.Get("/units/{id}/{type}", phttp.Handle(h.check))
	r.Post("/units/{id}/{type}/retry", phttp.Handle(h.retry))
}

// Wait blocks until detached work has finished
func (h *Handlers) Wait() { h.wg.Wait() }

func (h *Handlers) detach(r *stdhttp.Request, what string, fn func(context.Context) error) {
	ctx := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.C(ctx).Error().Interface("panic", p).Str("job", what).Msg("detached job panicked")
			}
		}()
		if err := fn(ctx); err != nil {
			logger.C(ctx).Error().Err(err).Str("job", what).Msg("detached job failed")
		}
	}()
}

// @Summary Start one orchestrator run
// @Tags Harvest
// @Accept json
// @Produce json
// @Param payload body domain.RunRequest false "Optional user or seller filter"
// @Success 202 {object} Accepted "processing started"
// @Router /harvest/runs [post]
func (h *Handlers) run(r *stdhttp.Request) phttp.Response {
	in, err := bind.ParseJSON[domain.RunRequest](r, bind.Options{MaxBytes: 1 << 16, AllowEmptyBody: true})
	if err != nil {
		return phttp.Error(err)
	}
	h.detach(r, "run", func(ctx context.Context) error {
		res, err := h.Runner.RunOnce(ctx, in)
		if err == nil {
			logger.C(ctx).Info().Str("run_id", res.RunID).Str("seller_id", res.SellerID).Int("units", len(res.Units)).Msg("run finished")
		}
		return err
	})
	return phttp.Accepted(Accepted{Message: "processing started"})
}

// @Summary Sweep stuck units now
// @Tags Harvest
// @Produce json
// @Success 202 {object} Accepted "watchdog started"
// @Router /harvest/watchdog [post]
func (h *Handlers) watchdog(r *stdhttp.Request) phttp.Response {
	h.detach(r, "watchdog", func(ctx context.Context) error {
		_, err := h.Runner.Watchdog(ctx)
		return err
	})
	return phttp.Accepted(Accepted{Message: "watchdog started"})
}

// @Summary Import completed downloads that never landed
// @Tags Harvest
// @Produce json
// @Success 202 {object} Accepted "import started"
// @Router /harvest/imports [post]
func (h *Handlers) importPending(r *stdhttp.Request) phttp.Response {
	h.detach(r, "import-pending", func(ctx context.Context) error {
		_, err := h.Runner.ImportPending(ctx)
		return err
	})
	return phttp.Accepted(Accepted{Message: "import started"})
}

// @Summary Phase of one report type of a unit
// @Tags Harvest
// @Produce json
// @Param id path int true "Work unit id"
// @Param type path string true "WEEK, MONTH or QUARTER"
// @Success 200 {object} domain.PhaseSnapshot "ok"
// @Failure 404 {object} phttp.Envelope "not found"
// @Router /harvest/units/{id}/{type} [get]
func (h *Handlers) check(r *stdhttp.Request) phttp.Response {
	id, t, err := unitParams(r)
	if err != nil {
		return phttp.Error(err)
	}
	snap, err := h.Query.CheckPhase(r.Context(), id, t)
	if err != nil {
		return phttp.Error(err)
	}
	return phttp.OK(snap)
}

// @Summary Redrive a stuck report type
// @Tags Harvest
// @Produce json
// @Param id path int true "Work unit id"
// @Param type path string true "WEEK, MONTH or QUARTER"
// @Success 202 {object} Accepted "retry started"
// @Failure 404 {object} phttp.Envelope "not found"
// @Router /harvest/units/{id}/{type}/retry [post]
func (h *Handlers) retry(r *stdhttp.Request) phttp.Response {
	id, t, err := unitParams(r)
	if err != nil {
		return phttp.Error(err)
	}
	// surface unknown units and types synchronously
	if _, err := h.Query.CheckPhase(r.Context(), id, t); err != nil {
		return phttp.Error(err)
	}
	h.detach(r, "retry", func(ctx context.Context) error {
		_, err := h.Runner.RetryStuckUnit(ctx, id, t)
		return err
	})
	return phttp.Accepted(Accepted{Message: "retry started", WorkUnitID: id, ReportType: t.String()})
}

func unitParams(r *stdhttp.Request) (int64, period.Type, error) {
	id, err := strconv.ParseInt(phttp.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, perr.WithField(perr.InvalidArgf("work unit id must be a positive integer"), "id")
	}
	t, err := period.ParseType(phttp.URLParam(r, "type"))
	if err != nil {
		return 0, 0, perr.WithField(perr.InvalidArgf("%v", err), "type")
	}
	return id, t, nil
}
