// Package httpkit mounts module routes with a shared middleware stack
package httpkit

import (
	"net/http"
	"strings"
	"time"

	phttp "mixshift/internal/platform/net/http"
	"mixshift/internal/platform/net/middleware"
)

// Router is the platform router seam
type Router = phttp.Router

// StackOptions tunes CommonStack
type StackOptions struct {
	CORSOrigins []string
	SlowRequest time.Duration
}

// CommonStack is the per api middleware slice mounted under /api
func CommonStack(o StackOptions) []func(http.Handler) http.Handler {
	mw := []func(http.Handler) http.Handler{
		middleware.RealIP(),
		middleware.RequestID(),
		middleware.RecoverJSON,
		middleware.AccessLog(o.SlowRequest),
	}
	if len(o.CORSOrigins) > 0 {
		mw = append(mw, middleware.CORS(o.CORSOrigins))
	}
	return append(mw, middleware.Timeout(30*time.Second))
}

// MountAPI mounts routes under /api/{version} with mw applied
func MountAPI(r Router, version string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	prefix := "/api/" + strings.Trim(version, "/")
	r.Route(prefix, func(api Router) {
		if len(mw) > 0 {
			api.Use(mw...)
		}
		mount(api)
	})
}

// MountAPIV1 is MountAPI with version v1
func MountAPIV1(r Router, mw []func(http.Handler) http.Handler, mount func(Router)) {
	MountAPI(r, "v1", mw, mount)
}
