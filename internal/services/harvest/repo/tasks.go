package repo

import (
	"context"
	"time"

	"mixshift/internal/modkit/repokit"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/services/harvest/domain"
)

const taskCols = `id::text, work_unit_id, report_type, date_range, state, report_id, document_id, created_at, updated_at`

func scanTask(row repokit.Row) (domain.ReportTask, error) {
	var x domain.ReportTask
	var t, st int16
	err := row.Scan(&x.ID, &x.WorkUnitID, &t, &x.Range, &st, &x.ReportID, &x.DocumentID, &x.CreatedAt, &x.UpdatedAt)
	x.Type, x.State = domain.ReportType(t), domain.TaskState(st)
	return x, err
}

// ClaimTask inserts task unless an active task holds its key; the partial
// unique index makes the check and insert one atomic step
func (r *queries) ClaimTask(ctx context.Context, task domain.ReportTask) (bool, error) {
	const sql = `
		INSERT INTO report_tasks (id, work_unit_id, report_type, date_range, state, report_id, document_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`
	tag, err := r.q.Exec(ctx, sql, task.ID, task.WorkUnitID, int16(task.Type), task.Range, int16(task.State), task.ReportID, task.DocumentID)
	if err != nil {
		return false, perr.FromPostgres(err, "claim task")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) oneTask(ctx context.Context, sql string, args ...any) (domain.ReportTask, bool, error) {
	x, err := scanTask(r.q.QueryRow(ctx, sql, args...))
	if noRows(err) {
		return domain.ReportTask{}, false, nil
	}
	if err != nil {
		return domain.ReportTask{}, false, perr.FromPostgres(err, "load task")
	}
	return x, true, nil
}

func (r *queries) ActiveTask(ctx context.Context, unitID int64, t domain.ReportType, rng string) (domain.ReportTask, bool, error) {
	return r.oneTask(ctx, `SELECT `+taskCols+` FROM report_tasks
		WHERE work_unit_id = $1 AND report_type = $2 AND date_range = $3 AND state IN ($4, $5, $6)`,
		unitID, int16(t), rng, int16(domain.TaskRequesting), int16(domain.TaskAwaitingStatus), int16(domain.TaskDownloading))
}

func (r *queries) LatestTask(ctx context.Context, unitID int64, t domain.ReportType, rng string) (domain.ReportTask, bool, error) {
	return r.oneTask(ctx, `SELECT `+taskCols+` FROM report_tasks
		WHERE work_unit_id = $1 AND report_type = $2 AND date_range = $3
		ORDER BY created_at DESC LIMIT 1`, unitID, int16(t), rng)
}

// UpdateTask moves a task; empty ids keep what is stored
func (r *queries) UpdateTask(ctx context.Context, id string, st domain.TaskState, reportID, documentID string) error {
	const sql = `
		UPDATE report_tasks SET
			state = $2,
			report_id = COALESCE(NULLIF($3, ''), report_id),
			document_id = COALESCE(NULLIF($4, ''), document_id),
			updated_at = clock_timestamp()
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, sql, id, int16(st), reportID, documentID)
	if err != nil {
		return perr.FromPostgres(err, "update task")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("task %s not found", id)
	}
	return nil
}

func (r *queries) LogActivity(ctx context.Context, e domain.ActivityEntry) error {
	const sql = `
		INSERT INTO activity_log (work_unit_id, report_type, date_range, action, outcome, message, report_id, document_id, retry_count, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.Exec(ctx, sql, e.WorkUnitID, int16(e.Type), e.Range, e.Action, e.Outcome, e.Message,
		e.ReportID, e.DocumentID, e.RetryCount, e.Elapsed.Milliseconds())
	return perr.FromPostgres(err, "log activity")
}

func (r *queries) latestActivity(ctx context.Context, col string, unitID int64, t domain.ReportType, rng string, since time.Time) (string, bool, error) {
	sql := `SELECT ` + col + ` FROM activity_log
		WHERE work_unit_id = $1 AND report_type = $2 AND date_range = $3 AND ` + col + ` <> ''
		AND created_at >= $4
		ORDER BY id DESC LIMIT 1`
	var v string
	err := r.q.QueryRow(ctx, sql, unitID, int16(t), rng, since).Scan(&v)
	if noRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, perr.FromPostgres(err, "latest "+col)
	}
	return v, true, nil
}

// LatestReportID reads the newest report id logged at or after since
func (r *queries) LatestReportID(ctx context.Context, unitID int64, t domain.ReportType, rng string, since time.Time) (string, bool, error) {
	return r.latestActivity(ctx, "report_id", unitID, t, rng, since)
}

func (r *queries) LatestDocumentID(ctx context.Context, unitID int64, t domain.ReportType, rng string, since time.Time) (string, bool, error) {
	return r.latestActivity(ctx, "document_id", unitID, t, rng, since)
}
