package middleware

import (
	stdhttp "net/http"
	"runtime/debug"

	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
	phttp "mixshift/internal/platform/net/http"
)

// RecoverJSON turns a panic into a JSON 500 and logs the stack
func RecoverJSON(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == stdhttp.ErrAbortHandler {
					panic(v)
				}
				logger.C(r.Context()).Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				phttp.RespondError(w, r, perr.PanicErrf("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
