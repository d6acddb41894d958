package service

import (
	"context"
	"fmt"

	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/harvest/domain"
)

// Watchdog re-drives types whose phase has not moved for StuckAfter. Each pass
// that leaves a type unfinished counts one retry; at the notify threshold the
// type is failed and reported
func (s *Service) Watchdog(ctx context.Context) (domain.WatchdogResult, error) {
	var res domain.WatchdogResult
	log := logger.Named("watchdog")
	before := s.clock.Now().Add(-s.cfg.StuckAfter)
	refs, err := s.repo.StuckTypes(ctx, before, s.cfg.WatchdogBatch)
	if err != nil {
		return res, err
	}
	for _, ref := range refs {
		res.Scanned++
		unit, seller, err := s.load(ctx, ref.WorkUnitID)
		if err != nil {
			log.Error().Err(err).Int64("work_unit_id", ref.WorkUnitID).Msg("stuck unit not loaded")
			continue
		}
		d := &drive{seller: seller, unit: &unit, t: ref.Type, watchdog: true}
		d.log(ctx).Info().Str("phase_status", ref.Phase.String()).Time("updated_at", ref.UpdatedAt).Msg("re-driving stuck type")
		if err := s.redrive(ctx, d); err != nil {
			d.log(ctx).Warn().Err(err).Msg("re-drive aborted")
		}

		switch st := d.state(); st.Pull {
		case domain.PullCompleted:
			res.Recovered++
			s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionWatchdog, Outcome: domain.OutcomeSuccess})
		case domain.PullFailed:
			res.Failed++
		default:
			if s.giveUp(ctx, d) {
				res.Failed++
			} else {
				res.Pending++
			}
		}
		s.finalize(ctx, unit)
	}
	log.Info().Int("scanned", res.Scanned).Int("recovered", res.Recovered).Int("failed", res.Failed).Msg("watchdog pass done")
	return res, nil
}

// giveUp counts one watchdog retry and fails the type at the threshold
func (s *Service) giveUp(ctx context.Context, d *drive) bool {
	if err := s.save(ctx, d, func(st *domain.TypeState) { st.RetryCount++ }); err != nil {
		d.log(ctx).Error().Err(err).Msg("retry count not saved")
		return false
	}
	st := d.state()
	if st.RetryCount < s.cfg.NotifyAfterRetries {
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionWatchdog, Outcome: domain.OutcomeRetry, Message: fmt.Sprintf("still %s", st.Phase)})
		return false
	}

	task, ok, _ := s.repo.ActiveTask(ctx, d.unit.ID, d.t, d.rng())
	if ok {
		s.setTask(ctx, d, task.ID, domain.TaskFailed, "", "")
	}
	s.markAsins(ctx, d, domain.AsinFailed)
	msg := fmt.Sprintf("stuck in %s after %d watchdog retries", st.Phase, st.RetryCount)
	if err := s.save(ctx, d, func(st *domain.TypeState) {
		st.Pull, st.Phase = domain.PullFailed, domain.PhaseNotStarted
	}); err != nil {
		d.log(ctx).Error().Err(err).Msg("failed status not saved")
	}
	s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionWatchdog, Outcome: domain.OutcomeExhausted, Message: msg, ReportID: task.ReportID, RetryCount: st.RetryCount})
	d.log(ctx).Error().Int("retry_count", st.RetryCount).Msg(msg)
	s.notify(ctx, d, task.ReportID, msg, st.RetryCount, false)
	return true
}

// RetryStuckUnit re-drives one type from status polling on. It never issues a
// new report request; a claim with no report id is released for the next run
func (s *Service) RetryStuckUnit(ctx context.Context, unitID int64, t domain.ReportType) (domain.PhaseSnapshot, error) {
	unit, seller, err := s.load(ctx, unitID)
	if err != nil {
		return domain.PhaseSnapshot{}, err
	}
	if !unit.Applies(t) {
		return domain.PhaseSnapshot{}, perr.InvalidArgf("work unit %d has no %s range", unitID, t)
	}
	if !unit.State(t).Pull.Terminal() {
		d := &drive{seller: seller, unit: &unit, t: t}
		if err := s.redrive(ctx, d); err != nil {
			return domain.PhaseSnapshot{}, err
		}
		s.finalize(ctx, unit)
	}
	return s.CheckPhase(ctx, unitID, t)
}

// redrive polls the active task's report. A type with no active task, or a
// claim the provider never answered, is freed so the next run requests again
func (s *Service) redrive(ctx context.Context, d *drive) error {
	task, ok, err := s.repo.ActiveTask(ctx, d.unit.ID, d.t, d.rng())
	if err != nil {
		return err
	}
	if ok {
		id, err := s.reportFor(ctx, d, task)
		if err != nil {
			return err
		}
		if id != "" {
			return s.statusAndDownload(ctx, d)
		}
		s.setTask(ctx, d, task.ID, domain.TaskFailed, "", "")
	}
	s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionWatchdog, Outcome: domain.OutcomeSkipped, Message: "no report id recorded; claim released"})
	return s.save(ctx, d, func(st *domain.TypeState) {
		st.Pull, st.Phase = domain.PullNeedsRetry, domain.PhaseNotStarted
	})
}

// CheckPhase reads the current state of one type without side effects
func (s *Service) CheckPhase(ctx context.Context, unitID int64, t domain.ReportType) (domain.PhaseSnapshot, error) {
	unit, err := s.repo.Unit(ctx, unitID)
	if err != nil {
		return domain.PhaseSnapshot{}, err
	}
	if !unit.Applies(t) {
		return domain.PhaseSnapshot{}, perr.InvalidArgf("work unit %d has no %s range", unitID, t)
	}
	st := unit.State(t)
	snap := domain.PhaseSnapshot{
		WorkUnitID: unit.ID,
		Type:       t.String(),
		Range:      st.Range,
		Pull:       st.Pull.String(),
		Phase:      st.Phase.String(),
		RetryCount: st.RetryCount,
		Running:    unit.Running.String(),
		UpdatedAt:  unit.UpdatedAt,
	}
	task, ok, err := s.repo.LatestTask(ctx, unitID, t, st.Range)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.Task = task.State.String()
		d := &drive{unit: &unit, t: t}
		if snap.ReportID, err = s.reportFor(ctx, d, task); err != nil {
			return snap, err
		}
	}
	if rec, ok, err := s.repo.LatestDownload(ctx, unitID, t); err != nil {
		return snap, err
	} else if ok {
		ds := rec.Status
		snap.Download = &ds
	}
	return snap, nil
}

// ImportPending re-imports downloads that completed but never landed
func (s *Service) ImportPending(ctx context.Context) (domain.ImportPendingResult, error) {
	var res domain.ImportPendingResult
	recs, err := s.repo.PendingImports(ctx, s.cfg.ImportBatch)
	if err != nil {
		return res, err
	}
	for _, rec := range recs {
		unit, seller, err := s.load(ctx, rec.WorkUnitID)
		if err != nil {
			logger.C(ctx).Error().Err(err).Int64("download_id", rec.ID).Msg("unit for pending import not loaded")
			continue
		}
		if !unit.Applies(rec.Type) || unit.State(rec.Type).Pull.Terminal() {
			continue
		}
		res.Attempted++
		d := &drive{seller: seller, unit: &unit, t: rec.Type}
		if err := s.importDownload(ctx, d, rec.TaskID, rec); err != nil {
			d.log(ctx).Error().Err(err).Msg("pending import aborted")
		}
		if d.state().Pull == domain.PullCompleted {
			res.Imported++
		} else {
			res.Failed++
		}
		s.finalize(ctx, unit)
	}
	return res, nil
}

func (s *Service) load(ctx context.Context, unitID int64) (domain.WorkUnit, domain.Seller, error) {
	unit, err := s.repo.Unit(ctx, unitID)
	if err != nil {
		return unit, domain.Seller{}, err
	}
	seller, err := s.repo.Seller(ctx, unit.SellerAccountID)
	return unit, seller, err
}
