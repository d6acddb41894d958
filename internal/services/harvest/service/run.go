package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"mixshift/internal/core/chunk"
	"mixshift/internal/core/period"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/harvest/domain"
	"mixshift/internal/services/harvest/guardrails"
)

// RunOnce processes at most one eligible seller to completion. Per type
// failures are recorded on the unit and never returned
func (s *Service) RunOnce(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	res := domain.RunResult{RunID: uuid.NewString(), Units: []domain.UnitOutcome{}}
	ctx = logger.WithRun(ctx, res.RunID, "")
	ctx, cancel := guardrails.ForRun(ctx, s.cfg.Timeouts)
	defer cancel()

	seller, ok, err := s.repo.NextSeller(ctx, s.cfg.Gate.query(req))
	if err != nil {
		return res, err
	}
	if !ok {
		logger.C(ctx).Info().Str("user_id", req.UserID).Str("seller_id", req.SellerID).Msg("no eligible seller")
		return res, nil
	}
	res.SellerID = seller.SellingPartnerID
	ctx = logger.WithRun(ctx, res.RunID, seller.SellingPartnerID)

	run := func(ctx context.Context) error { return s.runSeller(ctx, seller, &res) }
	if s.lease == nil {
		return res, run(ctx)
	}
	err = s.lease(ctx, seller.ID, run)
	if errors.Is(err, guardrails.ErrLeaseHeld) {
		logger.C(ctx).Info().Msg("seller is being processed elsewhere; skipping")
		return res, nil
	}
	return res, err
}

func (s *Service) runSeller(ctx context.Context, seller domain.Seller, res *domain.RunResult) error {
	log := logger.C(ctx)
	if err := s.repo.TouchSellerRun(ctx, seller.ID, s.clock.Now()); err != nil {
		return err
	}
	asins, err := s.repo.EligibleAsins(ctx, seller.ID)
	if err != nil {
		return err
	}
	if len(asins) == 0 {
		log.Info().Msg("seller has no eligible asins")
		return nil
	}

	windows := s.pendingWindows(seller)
	allDone := true
	for _, batch := range chunk.Split(asins, chunk.Limit) {
		joined := chunk.Join(batch)
		slots, err := s.slots(ctx, seller.ID, joined, windows)
		if err != nil {
			log.Error().Err(err).Msg("coverage lookup failed; batch skipped")
			allDone = false
			continue
		}
		for _, ranges := range slots {
			unit, reused, err := s.openUnit(ctx, seller.ID, joined, ranges)
			if err != nil {
				log.Error().Err(err).Msg("work unit not opened; batch skipped")
				allDone = false
				continue
			}
			status := s.processUnit(ctx, seller, unit)
			res.Units = append(res.Units, domain.UnitOutcome{WorkUnitID: unit.ID, Reused: reused, Status: status.String()})
			if status != domain.RunningCompleted {
				allDone = false
			}
		}
	}

	if !allDone {
		log.Info().Int("units", len(res.Units)).Msg("run finished; watermark held")
		return nil
	}
	wm := s.cal.Watermark()
	for t, ws := range windows {
		if r := s.cal.Resume(t, ws); !r.IsZero() && r.Before(wm) {
			wm = r
		}
	}
	if err := s.repo.SetLastPull(ctx, seller.ID, wm); err != nil {
		return err
	}
	res.WatermarkAdvanced = true
	log.Info().Int("units", len(res.Units)).Msg("run finished; watermark advanced")
	return nil
}

// pendingWindows lists, per requestable type, the windows the seller has not pulled
func (s *Service) pendingWindows(seller domain.Seller) map[domain.ReportType][]period.Window {
	out := map[domain.ReportType][]period.Window{}
	for _, t := range period.All {
		if s.cal.Delayed(t) {
			continue
		}
		if ws := s.cal.Pending(t, seller.LastPullAt); len(ws) > 0 {
			out[t] = ws
		}
	}
	return out
}

// slots drops windows this batch already completed and lines the rest up so
// slot i holds the i-th oldest window of every type
func (s *Service) slots(ctx context.Context, sellerID int64, asins string, windows map[domain.ReportType][]period.Window) ([]map[domain.ReportType]string, error) {
	var out []map[domain.ReportType]string
	for _, t := range period.All {
		i := 0
		for _, w := range windows[t] {
			covered, err := s.repo.Covered(ctx, sellerID, asins, t, w.String())
			if err != nil {
				return nil, err
			}
			if covered {
				continue
			}
			if i == len(out) {
				out = append(out, map[domain.ReportType]string{})
			}
			out[i][t] = w.String()
			i++
		}
	}
	return out, nil
}

// openUnit reuses an unfinished unit with the same key or creates one
func (s *Service) openUnit(ctx context.Context, sellerID int64, asins string, ranges map[domain.ReportType]string) (domain.WorkUnit, bool, error) {
	u, ok, err := s.repo.FindOpenUnit(ctx, sellerID, asins, ranges)
	if err != nil {
		return domain.WorkUnit{}, false, err
	}
	if ok {
		return u, true, nil
	}
	u = domain.WorkUnit{SellerAccountID: sellerID, Asins: asins, Types: map[domain.ReportType]domain.TypeState{}}
	for t, r := range ranges {
		u.Types[t] = domain.TypeState{Range: r}
	}
	u, err = s.repo.CreateUnit(ctx, u)
	return u, false, err
}

// processUnit drives every applicable type one at a time then finalizes
func (s *Service) processUnit(ctx context.Context, seller domain.Seller, unit domain.WorkUnit) domain.RunningStatus {
	for _, t := range period.All {
		if !unit.Applies(t) {
			continue
		}
		st := unit.State(t)
		if st.Pull.Terminal() {
			continue
		}
		d := &drive{seller: seller, unit: &unit, t: t}
		if err := s.driveType(ctx, d); err != nil {
			d.log(ctx).Error().Err(err).Msg("report type aborted")
		}
	}
	return s.finalize(ctx, unit)
}

// finalize persists the aggregate status of unit
func (s *Service) finalize(ctx context.Context, unit domain.WorkUnit) domain.RunningStatus {
	st := unit.Aggregate()
	if err := s.repo.SetRunning(ctx, unit.ID, st); err != nil {
		logger.C(ctx).Error().Err(err).Int64("work_unit_id", unit.ID).Msg("running status not saved")
	}
	return st
}
