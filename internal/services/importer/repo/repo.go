// Package repo provides the importer repository implementation
package repo

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"mixshift/internal/modkit/repokit"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/services/importer/domain"
)

//go:embed schema.sql
var schema string

// batchRows keeps one insert under the bind parameter limit
const batchRows = 500

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the importer repository
type Storage interface {
	// WriteRows upserts rows keyed by (download_id, row_no) and returns how many were sent
	WriteRows(ctx context.Context, req domain.Request, rows []domain.Row) (int, error)
	// MarkImported stamps the download; a non-empty importErr records a failure instead
	MarkImported(ctx context.Context, downloadID int64, importErr string) error
}

// Migrate applies the importer schema
func Migrate(ctx context.Context, q repokit.Queryer) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return perr.FromPostgres(err, "apply importer schema")
	}
	return nil
}

// WriteRows implements Storage
func (s *pg) WriteRows(ctx context.Context, req domain.Request, rows []domain.Row) (int, error) {
	for start := 0; start < len(rows); start += batchRows {
		end := min(start+batchRows, len(rows))
		if err := s.writeBatch(ctx, req, start, rows[start:end]); err != nil {
			return start, err
		}
	}
	return len(rows), nil
}

func (s *pg) writeBatch(ctx context.Context, req domain.Request, offset int, xs []domain.Row) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO report_rows
		(download_id, row_no, work_unit_id, seller_account_id, report_type, date_range, asin, data) VALUES `)

	args := make([]any, 0, len(xs)*8)
	for i, r := range xs {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*8 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base, base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			req.DownloadID, offset+i, req.WorkUnitID, req.SellerAccountID,
			req.ReportType, req.Range, domain.ASIN(r), r,
		)
	}
	// re-import of the same artifact replaces rather than duplicates
	sb.WriteString(` ON CONFLICT (download_id, row_no) DO UPDATE SET data = EXCLUDED.data, asin = EXCLUDED.asin`)
	if _, err := s.q.Exec(ctx, sb.String(), args...); err != nil {
		return perr.FromPostgres(err, "write report rows")
	}
	return nil
}

// MarkImported implements Storage
func (s *pg) MarkImported(ctx context.Context, downloadID int64, importErr string) error {
	const sql = `
		UPDATE download_records
		SET imported_at  = CASE WHEN $2 = '' THEN now() ELSE imported_at END,
		    import_error = $2,
		    updated_at   = now()
		WHERE id = $1
	`
	tag, err := s.q.Exec(ctx, sql, downloadID, importErr)
	if err != nil {
		return perr.FromPostgres(err, "mark imported")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("download %d", downloadID)
	}
	return nil
}
