package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mixshift/internal/core/period"
	"mixshift/internal/modkit/repokit"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/services/harvest/domain"
)

// unitCols lists the cron_details columns in scan order
var unitCols = func() string {
	cols := []string{"id", "seller_account_id", "asins"}
	for _, t := range period.All {
		cols = append(cols,
			domain.Column(t, "range"), domain.Column(t, "pull_status"),
			domain.Column(t, "phase_status"), domain.Column(t, "retry_count"))
	}
	cols = append(cols, "cron_running_status", "created_at", "updated_at")
	return strings.Join(cols, ", ")
}()

func scanUnit(row repokit.Row) (domain.WorkUnit, error) {
	u := domain.WorkUnit{Types: map[domain.ReportType]domain.TypeState{}}
	type slot struct {
		rng         string
		pull, phase int16
		retries     int
	}
	slots := make([]slot, len(period.All))
	dst := []any{&u.ID, &u.SellerAccountID, &u.Asins}
	for i := range slots {
		dst = append(dst, &slots[i].rng, &slots[i].pull, &slots[i].phase, &slots[i].retries)
	}
	var running int16
	dst = append(dst, &running, &u.CreatedAt, &u.UpdatedAt)
	if err := row.Scan(dst...); err != nil {
		return u, err
	}
	for i, t := range period.All {
		s := slots[i]
		if s.rng == "" {
			continue
		}
		u.Types[t] = domain.TypeState{
			Range:      s.rng,
			Pull:       domain.PullStatus(s.pull),
			Phase:      domain.PhaseStatus(s.phase),
			RetryCount: s.retries,
		}
	}
	u.Running = domain.RunningStatus(running)
	return u, nil
}

// Covered reports whether any unit of the batch completed t for rng
func (r *queries) Covered(ctx context.Context, sellerID int64, asins string, t domain.ReportType, rng string) (bool, error) {
	sql := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM cron_details
			WHERE seller_account_id = $1 AND asins = $2 AND %s = $3 AND %s = $4
		)`, domain.Column(t, "range"), domain.Column(t, "pull_status"))
	var ok bool
	err := r.q.QueryRow(ctx, sql, sellerID, asins, rng, int16(domain.PullCompleted)).Scan(&ok)
	return ok, perr.FromPostgres(err, "coverage lookup")
}

// FindOpenUnit returns the newest running or needs-retry unit with the same key
func (r *queries) FindOpenUnit(ctx context.Context, sellerID int64, asins string, ranges map[domain.ReportType]string) (domain.WorkUnit, bool, error) {
	where := []string{"seller_account_id = $1", "asins = $2", "cron_running_status IN ($3, $4)"}
	args := []any{sellerID, asins, int16(domain.Running), int16(domain.RunningNeedsRetry)}
	for _, t := range period.All {
		args = append(args, ranges[t])
		where = append(where, fmt.Sprintf("%s = $%d", domain.Column(t, "range"), len(args)))
	}
	sql := `SELECT ` + unitCols + ` FROM cron_details WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id DESC LIMIT 1`
	u, err := scanUnit(r.q.QueryRow(ctx, sql, args...))
	if noRows(err) {
		return domain.WorkUnit{}, false, nil
	}
	if err != nil {
		return domain.WorkUnit{}, false, perr.FromPostgres(err, "find open unit")
	}
	return u, true, nil
}

func (r *queries) CreateUnit(ctx context.Context, u domain.WorkUnit) (domain.WorkUnit, error) {
	cols := []string{"seller_account_id", "asins", "cron_running_status"}
	args := []any{u.SellerAccountID, u.Asins, int16(u.Running)}
	for _, t := range period.All {
		st := u.State(t)
		cols = append(cols, domain.Column(t, "range"), domain.Column(t, "pull_status"), domain.Column(t, "phase_status"), domain.Column(t, "retry_count"))
		args = append(args, st.Range, int16(st.Pull), int16(st.Phase), st.RetryCount)
	}
	marks := make([]string, len(args))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := `INSERT INTO cron_details (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(marks, ", ") + `) RETURNING ` + unitCols
	out, err := scanUnit(r.q.QueryRow(ctx, sql, args...))
	return out, perr.FromPostgres(err, "create unit")
}

func (r *queries) Unit(ctx context.Context, id int64) (domain.WorkUnit, error) {
	u, err := scanUnit(r.q.QueryRow(ctx, `SELECT `+unitCols+` FROM cron_details WHERE id = $1`, id))
	if noRows(err) {
		return u, perr.NotFoundf("work unit %d not found", id)
	}
	return u, perr.FromPostgres(err, "load unit")
}

func (r *queries) UpdateType(ctx context.Context, unitID int64, t domain.ReportType, st domain.TypeState) error {
	sql := fmt.Sprintf(`UPDATE cron_details SET %s = $2, %s = $3, %s = $4, updated_at = now() WHERE id = $1`,
		domain.Column(t, "pull_status"), domain.Column(t, "phase_status"), domain.Column(t, "retry_count"))
	tag, err := r.q.Exec(ctx, sql, unitID, int16(st.Pull), int16(st.Phase), st.RetryCount)
	if err != nil {
		return perr.FromPostgres(err, "update unit type")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("work unit %d not found", unitID)
	}
	return nil
}

func (r *queries) SetRunning(ctx context.Context, unitID int64, st domain.RunningStatus) error {
	_, err := r.q.Exec(ctx, `UPDATE cron_details SET cron_running_status = $2, updated_at = now() WHERE id = $1`, unitID, int16(st))
	return perr.FromPostgres(err, "set running status")
}

// StuckTypes lists types in an active phase whose unit has not moved since before
func (r *queries) StuckTypes(ctx context.Context, before time.Time, limit int) ([]domain.StuckRef, error) {
	parts := make([]string, 0, len(period.All))
	for _, t := range period.All {
		parts = append(parts, fmt.Sprintf(`
			SELECT id, %d AS report_type, %s AS phase, updated_at FROM cron_details
			WHERE %s <> '' AND %s BETWEEN $2 AND $3 AND %s NOT IN ($4, $5) AND updated_at < $1`,
			int(t), domain.Column(t, "phase_status"),
			domain.Column(t, "range"), domain.Column(t, "phase_status"), domain.Column(t, "pull_status")))
	}
	sql := strings.Join(parts, " UNION ALL ") + ` ORDER BY updated_at, id LIMIT $6`
	rows, err := r.q.Query(ctx, sql, before,
		int16(domain.PhaseRequesting), int16(domain.PhaseImporting),
		int16(domain.PullCompleted), int16(domain.PullFailed), limit)
	if err != nil {
		return nil, perr.FromPostgres(err, "stuck types")
	}
	defer rows.Close()
	var out []domain.StuckRef
	for rows.Next() {
		var ref domain.StuckRef
		var t, phase int16
		if err := rows.Scan(&ref.WorkUnitID, &t, &phase, &ref.UpdatedAt); err != nil {
			return nil, err
		}
		ref.Type, ref.Phase = domain.ReportType(t), domain.PhaseStatus(phase)
		out = append(out, ref)
	}
	return out, rows.Err()
}
