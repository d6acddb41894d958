package service

import (
	"cmp"
	"context"
	"fmt"

	"github.com/google/uuid"

	"mixshift/internal/core/chunk"
	"mixshift/internal/core/period"
	"mixshift/internal/core/retry"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/harvest/domain"
	"mixshift/internal/services/harvest/guardrails"
	imdom "mixshift/internal/services/importer/domain"
)

// drive is one (unit, type) being pushed through the phases. unit is shared
// with the caller so finalize sees every transition
type drive struct {
	seller   domain.Seller
	unit     *domain.WorkUnit
	t        domain.ReportType
	watchdog bool
}

func (d *drive) state() domain.TypeState { return d.unit.Types[d.t] }
func (d *drive) rng() string             { return d.unit.Types[d.t].Range }

func (d *drive) log(ctx context.Context) *logger.Logger {
	l := logger.C(ctx).With().
		Int64("work_unit_id", d.unit.ID).
		Str("seller_id", d.seller.SellingPartnerID).
		Str("report_type", d.t.String()).
		Str("date_range", d.rng()).
		Logger()
	return &l
}

// save applies mutate to the type state and writes it before anything reads it back
func (s *Service) save(ctx context.Context, d *drive, mutate func(*domain.TypeState)) error {
	st := d.state()
	mutate(&st)
	if err := s.repo.UpdateType(ctx, d.unit.ID, d.t, st); err != nil {
		return err
	}
	d.unit.Types[d.t] = st
	return nil
}

// record appends to the activity log; a failed write is logged, never fatal
func (s *Service) record(ctx context.Context, d *drive, e domain.ActivityEntry) {
	e.WorkUnitID, e.Type, e.Range = d.unit.ID, d.t, d.rng()
	if e.RetryCount == 0 {
		e.RetryCount = d.state().RetryCount
	}
	if err := s.repo.LogActivity(ctx, e); err != nil {
		d.log(ctx).Error().Err(err).Str("action", e.Action).Msg("activity not recorded")
	}
}

func (s *Service) markAsins(ctx context.Context, d *drive, st domain.AsinStatus) {
	if err := s.repo.MarkAsins(ctx, d.seller.ID, chunk.Parse(d.unit.Asins), d.t, st); err != nil {
		d.log(ctx).Warn().Err(err).Msg("asin status not saved")
	}
}

func (s *Service) setTask(ctx context.Context, d *drive, id string, st domain.TaskState, reportID, documentID string) {
	if id == "" {
		return
	}
	if err := s.repo.UpdateTask(ctx, id, st, reportID, documentID); err != nil {
		d.log(ctx).Error().Err(err).Str("task_id", id).Msg("task state not saved")
	}
}

// driveType runs request then status, download and import for one type
func (s *Service) driveType(ctx context.Context, d *drive) error {
	next, err := s.request(ctx, d)
	if err != nil || !next {
		return err
	}
	return s.statusAndDownload(ctx, d)
}

// reportFor resolves the provider report id of task. Only log entries written
// since the task was claimed count, so a released earlier task never answers
func (s *Service) reportFor(ctx context.Context, d *drive, task domain.ReportTask) (string, error) {
	id, ok, err := s.repo.LatestReportID(ctx, d.unit.ID, d.t, d.rng(), task.CreatedAt)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	return task.ReportID, nil
}

// request claims the (unit, type, range) key and asks the provider for a report.
// An active task with a report id means a report is already in flight; the
// request is skipped and the caller goes straight to polling it. An active
// task without one is a claim the provider never answered: a fresh claim is
// left alone, a stale one is released and requested again
func (s *Service) request(ctx context.Context, d *drive) (bool, error) {
	log := d.log(ctx)
	active, ok, err := s.repo.ActiveTask(ctx, d.unit.ID, d.t, d.rng())
	if err != nil {
		return false, err
	}
	if ok {
		reportID, err := s.reportFor(ctx, d, active)
		if err != nil {
			return false, err
		}
		if reportID != "" {
			log.Info().Str("task_state", active.State.String()).Msg("report already in flight; request skipped")
			s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionRequest, Outcome: domain.OutcomeSkipped, Message: "active task " + active.ID, ReportID: reportID})
			return true, nil
		}
		if s.clock.Now().Sub(active.UpdatedAt) < s.cfg.StuckAfter {
			log.Info().Str("task_id", active.ID).Msg("request in progress elsewhere; skipped")
			s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionRequest, Outcome: domain.OutcomeSkipped, Message: "claim " + active.ID + " not answered yet"})
			return false, nil
		}
		log.Warn().Str("task_id", active.ID).Msg("claim never answered; released")
		s.setTask(ctx, d, active.ID, domain.TaskFailed, "", "")
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionRequest, Outcome: domain.OutcomeSkipped, Message: "claim " + active.ID + " released"})
	}

	task := domain.ReportTask{ID: uuid.NewString(), WorkUnitID: d.unit.ID, Type: d.t, Range: d.rng(), State: domain.TaskRequesting}
	st := d.state()
	st.Phase = domain.PhaseRequesting
	var claimed bool
	err = s.tx(ctx, func(r domain.Repo) error {
		ok, err := r.ClaimTask(ctx, task)
		if err != nil || !ok {
			return err
		}
		claimed = true
		return r.UpdateType(ctx, d.unit.ID, d.t, st)
	})
	if err != nil {
		return false, err
	}
	if !claimed {
		log.Info().Msg("another request claimed the key; request skipped")
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionRequest, Outcome: domain.OutcomeSkipped, Message: "claim lost"})
		return true, nil
	}
	d.unit.Types[d.t] = st
	s.markAsins(ctx, d, domain.AsinInProgress)

	w, err := period.ParseWindow(d.t, d.rng(), s.cal.Schedule().Location)
	if err != nil {
		s.fail(ctx, d, domain.ActionRequest, task.ID, "", err.Error())
		return false, nil
	}
	rr := domain.ReportRequest{MarketplaceID: d.seller.MarketplaceID, Type: d.t, Start: w.Start, End: w.End, Asins: d.unit.Asins}

	res := retry.Do(ctx, s.engine, s.policy(opCreateReport, s.cfg.MaxRequestAttempts),
		func(ctx context.Context, a retry.Attempt) (string, error) {
			log.Info().Int("attempt", a.N).Msg("requesting report")
			return call(ctx, s, opCreateReport, d.seller, func(ctx context.Context, c domain.Call) (string, error) {
				return s.api.CreateReport(ctx, c, rr)
			})
		}, nil)

	switch res.Outcome {
	case retry.Succeeded:
		s.setTask(ctx, d, task.ID, domain.TaskAwaitingStatus, res.Value, "")
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionRequest, Outcome: domain.OutcomeSuccess, ReportID: res.Value, Elapsed: res.Elapsed})
		if err := s.save(ctx, d, func(st *domain.TypeState) { st.Phase = domain.PhaseCheckingStatus }); err != nil {
			return false, err
		}
		log.Info().Str("report_id", res.Value).Int("attempts", res.Attempts).Msg("report requested")
		if err := s.sleeper.Sleep(ctx, s.cfg.InitialDelay, "initial delay before first status check"); err != nil {
			return false, err
		}
		return true, nil
	case retry.Aborted:
		// nothing reached the provider that we know of; release the claim
		bg := context.WithoutCancel(ctx)
		s.setTask(bg, d, task.ID, domain.TaskFailed, "", "")
		_ = s.save(bg, d, func(st *domain.TypeState) { st.Phase = domain.PhaseNotStarted })
		return false, res.Err
	case retry.Exhausted:
		s.exhaust(ctx, d, domain.ActionRequest, task.ID, "", res.Err, true)
	default:
		s.fail(ctx, d, domain.ActionRequest, task.ID, "", errText(res.Err))
	}
	return false, nil
}

// statusAndDownload polls the report of the active task, resolved from the
// audit log, and once it is DONE downloads and imports it
func (s *Service) statusAndDownload(ctx context.Context, d *drive) error {
	log := d.log(ctx)
	task, ok, err := s.repo.ActiveTask(ctx, d.unit.ID, d.t, d.rng())
	if err != nil {
		return err
	}
	if !ok {
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionStatus, Outcome: domain.OutcomeSkipped, Message: "no active task"})
		return nil
	}

	var reportID string
	res := retry.Do(ctx, s.engine, s.policy(opGetReport, s.cfg.MaxStatusAttempts),
		func(ctx context.Context, a retry.Attempt) (domain.ReportStatus, error) {
			var zero domain.ReportStatus
			id, err := s.reportFor(ctx, d, task)
			if err != nil {
				return zero, err
			}
			if id == "" {
				return zero, retry.Skip(perr.NotFoundf("no report id recorded for unit %d %s", d.unit.ID, d.t))
			}
			reportID = id

			st, err := call(ctx, s, opGetReport, d.seller, func(ctx context.Context, c domain.Call) (domain.ReportStatus, error) {
				return s.api.ReportStatus(ctx, c, id)
			})
			if err != nil {
				return st, err
			}
			log.Info().Int("attempt", a.N).Str("report_id", id).Str("processing_status", st.Status).Msg("report status")
			switch st.Status {
			case domain.ProcessingDone:
				return st, nil
			case domain.ProcessingInQueue, domain.ProcessingInProgress:
				s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionStatus, Outcome: domain.OutcomeRetry, Message: fmt.Sprintf("attempt %d: %s", a.N, st.Status), ReportID: id, Elapsed: a.Elapsed})
				return st, retry.Again(perr.Unavailablef("report %s is %s", id, st.Status))
			}
			status := st.Status
			if status == "" {
				status = "no status"
			}
			return st, retry.Fatal(perr.Fatalf("report %s ended with %s", id, status))
		}, nil)

	switch res.Outcome {
	case retry.Succeeded:
		docID := res.Value.DocumentID
		if docID == "" {
			id, _, err := s.repo.LatestDocumentID(ctx, d.unit.ID, d.t, d.rng(), task.CreatedAt)
			if err != nil {
				return err
			}
			docID = cmp.Or(id, task.DocumentID)
		}
		if docID == "" {
			s.fail(ctx, d, domain.ActionStatus, task.ID, reportID, "report is DONE without a document id")
			return nil
		}
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionStatus, Outcome: domain.OutcomeSuccess, ReportID: reportID, DocumentID: docID, Elapsed: res.Elapsed})
		s.setTask(ctx, d, task.ID, domain.TaskDownloading, reportID, docID)
		if err := s.save(ctx, d, func(st *domain.TypeState) { st.Phase = domain.PhaseDownloading }); err != nil {
			return err
		}
		return s.download(ctx, d, task.ID, reportID, docID)
	case retry.Skipped:
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionStatus, Outcome: domain.OutcomeSkipped, Message: errText(res.Err)})
	case retry.Aborted:
		return res.Err
	case retry.Exhausted:
		// the provider still has the report; keep the task so the next pass polls it again
		s.exhaust(ctx, d, domain.ActionStatus, task.ID, reportID, res.Err, false)
	default:
		s.fail(ctx, d, domain.ActionStatus, task.ID, reportID, errText(res.Err))
	}
	return nil
}

// download fetches the document once per attempt, bounded by the record's max
func (s *Service) download(ctx context.Context, d *drive, taskID, reportID, docID string) error {
	log := d.log(ctx)
	rec, err := s.repo.EnsureDownload(ctx, domain.DownloadRecord{
		TaskID: taskID, WorkUnitID: d.unit.ID, Type: d.t, Range: d.rng(),
		ReportID: reportID, DocumentID: docID,
		Status: domain.DownloadPending, MaxAttempts: s.cfg.MaxDownloadAttempts,
	})
	if err != nil {
		return err
	}
	switch rec.Status {
	case domain.DownloadCompleted:
		log.Info().Int64("download_id", rec.ID).Msg("document already downloaded")
		return s.importDownload(ctx, d, taskID, rec)
	case domain.DownloadFailed:
		s.exhaust(ctx, d, domain.ActionDownload, taskID, reportID, perr.Conflictf("download %d already failed", rec.ID), true)
		return nil
	}

	left := max(rec.MaxAttempts-rec.Attempts, 1)
	res := retry.Do(ctx, s.engine, s.policy(opDownload, left),
		func(ctx context.Context, a retry.Attempt) ([]domain.Row, error) {
			cur, ok, err := s.repo.BeginDownloadAttempt(ctx, rec.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, retry.Fatal(perr.Conflictf("download %d has no attempts left", rec.ID))
			}
			rec = cur
			log.Info().Int("attempt", cur.Attempts).Int("max_attempts", cur.MaxAttempts).Msg("downloading document")
			return call(ctx, s, opDownload, d.seller, func(ctx context.Context, c domain.Call) ([]domain.Row, error) {
				return s.api.DownloadRows(ctx, c, docID)
			})
		}, nil)

	switch res.Outcome {
	case retry.Succeeded:
	case retry.Aborted:
		return res.Err
	default:
		if err := s.repo.FailDownload(ctx, rec.ID, errText(res.Err)); err != nil {
			log.Error().Err(err).Msg("download failure not saved")
		}
		if res.Outcome == retry.Exhausted {
			s.exhaust(ctx, d, domain.ActionDownload, taskID, reportID, res.Err, true)
		} else {
			s.fail(ctx, d, domain.ActionDownload, taskID, reportID, errText(res.Err))
		}
		return nil
	}

	rows := res.Value
	var path string
	var size int64
	if len(rows) > 0 {
		if s.artifacts == nil {
			err = perr.New(perr.ErrorCodeUnavailable, "no artifact store configured")
		} else {
			path, size, err = s.artifacts.Save(ctx, d.seller.SellingPartnerID, d.t.String(), reportID, rows)
		}
		if err != nil {
			_ = s.repo.FailDownload(ctx, rec.ID, err.Error())
			s.exhaust(ctx, d, domain.ActionDownload, taskID, reportID, err, true)
			return nil
		}
	}
	if err := s.repo.CompleteDownload(ctx, rec.ID, path, size, len(rows)); err != nil {
		return err
	}
	rec.Status, rec.Path, rec.SizeBytes, rec.RowCount = domain.DownloadCompleted, path, size, len(rows)

	outcome := domain.OutcomeSuccess
	if len(rows) == 0 {
		outcome = domain.OutcomeNoData
	}
	s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionDownload, Outcome: outcome, ReportID: reportID, DocumentID: docID, Message: fmt.Sprintf("%d rows, %d bytes", len(rows), size), Elapsed: res.Elapsed})
	return s.importDownload(ctx, d, taskID, rec)
}

// importDownload hands a COMPLETED download to the importer. A failed import
// leaves the download alone so it can be imported again without refetching
func (s *Service) importDownload(ctx context.Context, d *drive, taskID string, rec domain.DownloadRecord) error {
	log := d.log(ctx)
	if err := s.save(ctx, d, func(st *domain.TypeState) { st.Phase = domain.PhaseImporting }); err != nil {
		return err
	}

	req := imdom.Request{
		DownloadID:      rec.ID,
		WorkUnitID:      d.unit.ID,
		SellerAccountID: d.seller.ID,
		ReportType:      d.t.String(),
		Range:           d.rng(),
		ReportID:        rec.ReportID,
		Path:            rec.Path,
		NoData:          rec.RowCount == 0,
	}
	var out imdom.Result
	err := perr.New(perr.ErrorCodeUnavailable, "no importer configured")
	if s.importer != nil {
		ictx, cancel := guardrails.ForImport(ctx, s.cfg.Timeouts)
		out, err = s.importer.Import(ictx, req)
		cancel()
	}
	if err != nil {
		log.Warn().Err(err).Int64("download_id", rec.ID).Msg("import failed; download kept for re-import")
		s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionImport, Outcome: domain.OutcomeFailed, Message: err.Error(), ReportID: rec.ReportID})
		return s.save(ctx, d, func(st *domain.TypeState) { st.Pull = domain.PullNeedsRetry })
	}

	outcome := domain.OutcomeSuccess
	if req.NoData {
		outcome = domain.OutcomeNoData
	}
	s.record(ctx, d, domain.ActivityEntry{Action: domain.ActionImport, Outcome: outcome, ReportID: rec.ReportID, Message: fmt.Sprintf("%d rows imported", out.Rows)})
	s.setTask(ctx, d, taskID, domain.TaskImported, "", "")
	if err := s.save(ctx, d, func(st *domain.TypeState) {
		st.Pull, st.Phase = domain.PullCompleted, domain.PhaseNotStarted
	}); err != nil {
		return err
	}
	s.markAsins(ctx, d, domain.AsinCompleted)
	log.Info().Int("rows", out.Rows).Bool("no_data", req.NoData).Msg("report imported")
	return nil
}

// exhaust handles retryable failures that ran out of attempts: asins Failed,
// type NeedsRetry, one more retry counted. releaseTask frees the key so the
// next run requests a fresh report. At NotifyAfterRetries the type is failed
// and notified once. Watchdog passes count and notify themselves
func (s *Service) exhaust(ctx context.Context, d *drive, action, taskID, reportID string, cause error, releaseTask bool) {
	s.markAsins(ctx, d, domain.AsinFailed)
	if releaseTask {
		s.setTask(ctx, d, taskID, domain.TaskFailed, "", "")
	}
	if err := s.save(ctx, d, func(st *domain.TypeState) {
		st.Pull = domain.PullNeedsRetry
		if releaseTask {
			st.Phase = domain.PhaseNotStarted
		}
		if !d.watchdog {
			st.RetryCount++
		}
	}); err != nil {
		d.log(ctx).Error().Err(err).Msg("needs retry not saved")
	}
	st := d.state()
	s.record(ctx, d, domain.ActivityEntry{Action: action, Outcome: domain.OutcomeExhausted, Message: errText(cause), ReportID: reportID})
	if d.watchdog || st.RetryCount < s.cfg.NotifyAfterRetries {
		d.log(ctx).Warn().Err(cause).Int("retry_count", st.RetryCount).Msg("attempts exhausted; type needs retry")
		return
	}

	if !releaseTask {
		s.setTask(ctx, d, taskID, domain.TaskFailed, "", "")
	}
	if err := s.save(ctx, d, func(st *domain.TypeState) {
		st.Pull, st.Phase = domain.PullFailed, domain.PhaseNotStarted
	}); err != nil {
		d.log(ctx).Error().Err(err).Msg("failed status not saved")
	}
	msg := fmt.Sprintf("%s exhausted after %d retries: %s", action, st.RetryCount, errText(cause))
	d.log(ctx).Error().Err(cause).Int("retry_count", st.RetryCount).Msg("retries exhausted; type failed")
	s.notify(ctx, d, reportID, msg, st.RetryCount, false)
}

// fail handles terminal outcomes: type and asins Failed, immediate notification with no retry count
func (s *Service) fail(ctx context.Context, d *drive, action, taskID, reportID, msg string) {
	s.markAsins(ctx, d, domain.AsinFailed)
	s.setTask(ctx, d, taskID, domain.TaskFailed, "", "")
	if err := s.save(ctx, d, func(st *domain.TypeState) {
		st.Pull, st.Phase = domain.PullFailed, domain.PhaseNotStarted
	}); err != nil {
		d.log(ctx).Error().Err(err).Msg("failed status not saved")
	}
	s.record(ctx, d, domain.ActivityEntry{Action: action, Outcome: domain.OutcomeFatal, Message: msg, ReportID: reportID})
	d.log(ctx).Error().Str("action", action).Str("report_id", reportID).Msg("report failed: " + msg)
	s.notify(ctx, d, reportID, msg, 0, true)
}

func (s *Service) notify(ctx context.Context, d *drive, reportID, msg string, retries int, fatal bool) {
	s.notifier.SendFailure(ctx, domain.Failure{
		WorkUnitID: d.unit.ID,
		SellerID:   d.seller.SellingPartnerID,
		Type:       d.t,
		Message:    msg,
		RetryCount: retries,
		ReportID:   reportID,
		Fatal:      fatal,
	})
}

func (s *Service) policy(name string, attempts int) retry.Policy {
	return retry.Policy{Name: name, MaxAttempts: attempts, Backoff: s.cfg.Backoff}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
