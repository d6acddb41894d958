package http

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// MountDocs serves doc at /openapi.json and the swagger ui at /docs/
func MountDocs(r Router, doc []byte) {
	r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(doc)
	})
	r.Handle("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))
}
