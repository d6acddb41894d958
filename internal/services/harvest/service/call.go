package service

import (
	"context"

	"mixshift/internal/core/breaker"
	"mixshift/internal/core/ratelimit"
	"mixshift/internal/core/retry"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/harvest/domain"
	"mixshift/internal/services/harvest/guardrails"
)

// provider operation names; they key the breaker together with the seller
const (
	opCreateReport = "createReport"
	opGetReport    = "getReport"
	opDownload     = "downloadReportDocument"
)

// call runs one provider operation for seller: wait for a rate limit slot,
// pass the breaker, then call with a cached token. A 401 or 403 forces one
// token refresh and a second try; a second rejection is terminal
func call[T any](ctx context.Context, s *Service, op string, seller domain.Seller, fn func(context.Context, domain.Call) (T, error)) (T, error) {
	var zero T
	if err := s.limiter.Check(ctx, seller.SellingPartnerID, ratelimit.Wait); err != nil {
		return zero, err
	}
	return breaker.Call(ctx, s.breaker, breaker.Key(op, seller.SellingPartnerID), func(ctx context.Context) (T, error) {
		ctx, cancel := guardrails.ForCall(ctx, s.cfg.Timeouts)
		defer cancel()

		tok, err := s.tokens.AccessToken(ctx, seller.SellingPartnerID, seller.RefreshToken, false)
		if err != nil {
			return zero, authTerminal(err)
		}
		out, err := fn(ctx, domain.Call{SellerID: seller.SellingPartnerID, AccessToken: tok})
		if !perr.IsAuth(err) {
			return out, err
		}

		logger.C(ctx).Warn().Str("op", op).Err(err).Msg("provider rejected token; forcing refresh")
		tok, err = s.tokens.AccessToken(ctx, seller.SellingPartnerID, seller.RefreshToken, true)
		if err != nil {
			return zero, authTerminal(err)
		}
		out, err = fn(ctx, domain.Call{SellerID: seller.SellingPartnerID, AccessToken: tok})
		return out, authTerminal(err)
	})
}

// authTerminal marks auth failures fatal so the retry engine stops at once
func authTerminal(err error) error {
	if perr.IsAuth(err) {
		return retry.Fatal(err)
	}
	return err
}
