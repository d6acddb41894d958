// Package repo provides the postgres implementation of the harvest repository
package repo

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mixshift/internal/modkit/repokit"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/services/harvest/domain"
)

//go:embed schema.sql
var schema string

type (
	// PG is a Postgres harvest repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres harvest repository
func NewPG() repokit.Binder[domain.Repo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of domain.Repo
func (PG) Bind(q repokit.Queryer) domain.Repo { return &queries{q: q} }

// Migrate applies the harvest schema; every statement is idempotent
func Migrate(ctx context.Context, q repokit.Queryer) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return perr.FromPostgres(err, "apply harvest schema")
	}
	return nil
}

func noRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// NextSeller picks the active seller that ran longest ago
func (r *queries) NextSeller(ctx context.Context, q domain.SellerQuery) (domain.Seller, bool, error) {
	const sql = `
		SELECT id, user_id, selling_partner_id, marketplace_id, refresh_token, last_pull_at, last_run_at
		FROM seller_accounts
		WHERE active
		  AND ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR selling_partner_id = $2)
		  AND ($3::text[] IS NULL OR user_id = ANY($3))
		ORDER BY last_run_at NULLS FIRST, id
		LIMIT 1
	`
	s, err := scanSeller(r.q.QueryRow(ctx, sql, q.UserID, q.SellerID, q.Users))
	if noRows(err) {
		return domain.Seller{}, false, nil
	}
	if err != nil {
		return domain.Seller{}, false, perr.FromPostgres(err, "next seller")
	}
	return s, true, nil
}

func (r *queries) Seller(ctx context.Context, id int64) (domain.Seller, error) {
	const sql = `
		SELECT id, user_id, selling_partner_id, marketplace_id, refresh_token, last_pull_at, last_run_at
		FROM seller_accounts WHERE id = $1
	`
	s, err := scanSeller(r.q.QueryRow(ctx, sql, id))
	if noRows(err) {
		return s, perr.NotFoundf("seller %d not found", id)
	}
	if err != nil {
		return s, perr.FromPostgres(err, "load seller")
	}
	return s, nil
}

func scanSeller(row repokit.Row) (domain.Seller, error) {
	var s domain.Seller
	var lastPull, lastRun *time.Time
	if err := row.Scan(&s.ID, &s.UserID, &s.SellingPartnerID, &s.MarketplaceID, &s.RefreshToken, &lastPull, &lastRun); err != nil {
		return s, err
	}
	if lastPull != nil {
		s.LastPullAt = *lastPull
	}
	if lastRun != nil {
		s.LastRunAt = *lastRun
	}
	return s, nil
}

func (r *queries) TouchSellerRun(ctx context.Context, id int64, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE seller_accounts SET last_run_at = $2 WHERE id = $1`, id, at)
	return perr.FromPostgres(err, "touch seller run")
}

// SetLastPull stores the watermark as a calendar date
func (r *queries) SetLastPull(ctx context.Context, id int64, day time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE seller_accounts SET last_pull_at = $2::date WHERE id = $1`, id, day.Format(time.DateOnly))
	return perr.FromPostgres(err, "set last pull")
}

func (r *queries) EligibleAsins(ctx context.Context, sellerID int64) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT asin FROM seller_asins WHERE seller_account_id = $1 AND eligible ORDER BY asin`, sellerID)
	if err != nil {
		return nil, perr.FromPostgres(err, "eligible asins")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *queries) MarkAsins(ctx context.Context, sellerID int64, asins []string, t domain.ReportType, st domain.AsinStatus) error {
	if len(asins) == 0 {
		return nil
	}
	sql := `UPDATE seller_asins SET ` + domain.Column(t, "status") + ` = $3, updated_at = now()
		WHERE seller_account_id = $1 AND asin = ANY($2)`
	_, err := r.q.Exec(ctx, sql, sellerID, asins, int16(st))
	return perr.FromPostgres(err, "mark asins")
}
