package guardrails

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"mixshift/internal/modkit/repokit"
)

// ErrLeaseHeld signals another process is already driving the seller
var ErrLeaseHeld = errors.New("harvest: seller lease already held")

// Lease runs do while holding a seller lease
type Lease func(ctx context.Context, sellerID int64, do func(context.Context) error) error

// MakeSellerLease claims seller_accounts.lease_* for ttl. The lease lapses on
// its own so a crashed process never blocks the seller for longer than ttl
func MakeSellerLease(db repokit.TxRunner, owner string, ttl time.Duration) Lease {
	owner = fmt.Sprintf("%s:%d", owner, os.Getpid())
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	secs := int64(ttl / time.Second)

	return func(ctx context.Context, sellerID int64, do func(context.Context) error) error {
		var claimed bool
		if err := db.Tx(ctx, func(q repokit.Queryer) error {
			ct, err := q.Exec(ctx, `
				UPDATE seller_accounts
				   SET lease_owner = $2, lease_expires_at = now() + ($3::bigint * interval '1 second')
				 WHERE id = $1
				   AND (lease_expires_at IS NULL OR lease_expires_at <= now())
			`, sellerID, owner, secs)
			if err != nil {
				return err
			}
			claimed = ct.RowsAffected() == 1
			return nil
		}); err != nil {
			return err
		}
		if !claimed {
			return ErrLeaseHeld
		}
		defer func() {
			_, _ = db.Exec(context.WithoutCancel(ctx), `
				UPDATE seller_accounts SET lease_owner = NULL, lease_expires_at = NULL
				 WHERE id = $1 AND lease_owner = $2
			`, sellerID, owner)
		}()
		return do(ctx)
	}
}
