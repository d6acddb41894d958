package repo

import (
	"context"
	"time"

	"mixshift/internal/modkit/repokit"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/services/harvest/domain"
)

const downloadCols = `id, task_id::text, work_unit_id, report_type, date_range, report_id, document_id, status,
	attempts, max_attempts, path, size_bytes, row_count, imported_at, import_error, updated_at`

func scanDownload(row repokit.Row) (domain.DownloadRecord, error) {
	var d domain.DownloadRecord
	var t int16
	var status string
	var imported *time.Time
	err := row.Scan(&d.ID, &d.TaskID, &d.WorkUnitID, &t, &d.Range, &d.ReportID, &d.DocumentID, &status,
		&d.Attempts, &d.MaxAttempts, &d.Path, &d.SizeBytes, &d.RowCount, &imported, &d.ImportError, &d.UpdatedAt)
	d.Type, d.Status = domain.ReportType(t), domain.DownloadStatus(status)
	if imported != nil {
		d.ImportedAt = *imported
	}
	return d, err
}

func (r *queries) scanDownloads(ctx context.Context, what string, sql string, args ...any) ([]domain.DownloadRecord, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, perr.FromPostgres(err, what)
	}
	defer rows.Close()
	var out []domain.DownloadRecord
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// EnsureDownload returns the record for (unit, type, document), creating it PENDING
func (r *queries) EnsureDownload(ctx context.Context, d domain.DownloadRecord) (domain.DownloadRecord, error) {
	const sql = `
		WITH ins AS (
			INSERT INTO download_records (task_id, work_unit_id, report_type, date_range, report_id, document_id, status, max_attempts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (work_unit_id, report_type, document_id) DO NOTHING
			RETURNING ` + downloadCols + `
		)
		SELECT * FROM ins
		UNION ALL
		SELECT ` + downloadCols + ` FROM download_records
		WHERE work_unit_id = $2 AND report_type = $3 AND document_id = $6
		LIMIT 1
	`
	out, err := scanDownload(r.q.QueryRow(ctx, sql, d.TaskID, d.WorkUnitID, int16(d.Type), d.Range,
		d.ReportID, d.DocumentID, string(domain.DownloadPending), d.MaxAttempts))
	return out, perr.FromPostgres(err, "ensure download")
}

// BeginDownloadAttempt takes the next attempt. False means the record is
// terminal or out of attempts
func (r *queries) BeginDownloadAttempt(ctx context.Context, id int64) (domain.DownloadRecord, bool, error) {
	const sql = `
		UPDATE download_records
		SET status = 'DOWNLOADING', attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'DOWNLOADING') AND attempts < max_attempts
		RETURNING ` + downloadCols
	d, err := scanDownload(r.q.QueryRow(ctx, sql, id))
	if noRows(err) {
		cur, err := r.Download(ctx, id)
		return cur, false, err
	}
	if err != nil {
		return d, false, perr.FromPostgres(err, "begin download attempt")
	}
	return d, true, nil
}

func (r *queries) CompleteDownload(ctx context.Context, id int64, path string, size int64, rows int) error {
	const sql = `
		UPDATE download_records
		SET status = 'COMPLETED', path = $2, size_bytes = $3, row_count = $4, updated_at = now()
		WHERE id = $1 AND status = 'DOWNLOADING'
	`
	tag, err := r.q.Exec(ctx, sql, id, path, size, rows)
	if err != nil {
		return perr.FromPostgres(err, "complete download")
	}
	if tag.RowsAffected() == 0 {
		return perr.Conflictf("download %d is not downloading", id)
	}
	return nil
}

func (r *queries) FailDownload(ctx context.Context, id int64, msg string) error {
	const sql = `
		UPDATE download_records
		SET status = 'FAILED', import_error = $2, updated_at = now()
		WHERE id = $1 AND status <> 'COMPLETED'
	`
	_, err := r.q.Exec(ctx, sql, id, msg)
	return perr.FromPostgres(err, "fail download")
}

func (r *queries) Download(ctx context.Context, id int64) (domain.DownloadRecord, error) {
	d, err := scanDownload(r.q.QueryRow(ctx, `SELECT `+downloadCols+` FROM download_records WHERE id = $1`, id))
	if noRows(err) {
		return d, perr.NotFoundf("download %d not found", id)
	}
	return d, perr.FromPostgres(err, "load download")
}

func (r *queries) LatestDownload(ctx context.Context, unitID int64, t domain.ReportType) (domain.DownloadRecord, bool, error) {
	d, err := scanDownload(r.q.QueryRow(ctx, `SELECT `+downloadCols+` FROM download_records
		WHERE work_unit_id = $1 AND report_type = $2 ORDER BY id DESC LIMIT 1`, unitID, int16(t)))
	if noRows(err) {
		return domain.DownloadRecord{}, false, nil
	}
	if err != nil {
		return d, false, perr.FromPostgres(err, "latest download")
	}
	return d, true, nil
}

// PendingImports lists completed downloads that were never imported
func (r *queries) PendingImports(ctx context.Context, limit int) ([]domain.DownloadRecord, error) {
	return r.scanDownloads(ctx, "pending imports", `SELECT `+downloadCols+` FROM download_records
		WHERE status = 'COMPLETED' AND imported_at IS NULL ORDER BY id LIMIT $1`, limit)
}
