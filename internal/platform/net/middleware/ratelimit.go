package middleware

import (
	stderrs "errors"
	"math"
	"net"
	"net/http"
	"strconv"

	"mixshift/internal/core/ratelimit"
	phttp "mixshift/internal/platform/net/http"
)

// RateLimit rejects callers over their window with 429 and Retry-After.
// Callers are keyed by remote ip, so mount it after RealIP
func RateLimit(l *ratelimit.Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			if err := l.Check(r.Context(), key, ratelimit.Reject); err != nil {
				var ex *ratelimit.ExceededError
				if stderrs.As(err, &ex) {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ex.RetryIn.Seconds()))))
				}
				phttp.RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
