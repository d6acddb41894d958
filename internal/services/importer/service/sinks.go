package service

import (
	"context"
	"encoding/json"

	"mixshift/internal/modkit/repokit"
	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/store"
	"mixshift/internal/services/importer/domain"
	"mixshift/internal/services/importer/repo"
)

// PGSink lands rows in report_rows
type PGSink struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[repo.Storage]
}

// Name implements domain.Sink
func (PGSink) Name() string { return "pg" }

// Write implements domain.Sink
func (s PGSink) Write(ctx context.Context, req domain.Request, rows []domain.Row) error {
	return s.DB.Tx(ctx, func(q repokit.Queryer) error {
		_, err := s.Binder.Bind(q).WriteRows(ctx, req, rows)
		return err
	})
}

// CHSink appends rows to the ClickHouse report_rows table. The table is a
// ReplacingMergeTree on (download_id, row_no) so replays collapse
type CHSink struct {
	CH    store.Clickhouse
	Clock clock.Clock
}

// CHSchema creates the analytics table
const CHSchema = `CREATE TABLE IF NOT EXISTS report_rows (
	download_id       Int64,
	row_no            Int32,
	work_unit_id      Int64,
	seller_account_id Int64,
	report_type       LowCardinality(String),
	date_range        String,
	asin              String,
	data              String,
	inserted_at       DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (seller_account_id, report_type, date_range, download_id, row_no)`

// Name implements domain.Sink
func (CHSink) Name() string { return "clickhouse" }

// Write implements domain.Sink
func (s CHSink) Write(ctx context.Context, req domain.Request, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	now := s.Clock.Now().UTC()
	batch := make([][]any, 0, len(rows))
	for i, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeJSON, "encode row %d", i)
		}
		batch = append(batch, []any{
			req.DownloadID, int32(i), req.WorkUnitID, req.SellerAccountID,
			req.ReportType, req.Range, domain.ASIN(r), string(b), now,
		})
	}
	if err := s.CH.Insert(ctx, "report_rows", batch); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "clickhouse insert report_rows")
	}
	return nil
}
