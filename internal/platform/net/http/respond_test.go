package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	perr "mixshift/internal/platform/errors"
	pnet "mixshift/internal/platform/net"

	"github.com/go-chi/chi/v5"
)

func TestHandleEnvelopes(t *testing.T) {
	t.Parallel()
	mux := chi.NewRouter()
	r := AdaptChi(mux)
	r.Route("/api/v1", func(r Router) {
		r.Get("/units/{id}", Handle(func(req *stdhttp.Request) Response {
			if URLParam(req, "id") == "404" {
				return Error(perr.NotFoundf("work unit %s", URLParam(req, "id")))
			}
			return OK(map[string]string{"id": URLParam(req, "id")})
		}))
		r.Post("/runs", Handle(func(*stdhttp.Request) Response { return Accepted("processing started") }))
	})

	do := func(method, path string) (int, Envelope) {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(pnet.WithRequestID(req.Context(), "rid"))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		var env Envelope
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad body %q", method, path, w.Body.String())
		}
		return w.Code, env
	}

	code, env := do(stdhttp.MethodGet, "/api/v1/units/7")
	if code != 200 || env.RequestID != "rid" || env.Data.(map[string]any)["id"] != "7" {
		t.Fatalf("ok: %d %+v", code, env)
	}
	code, env = do(stdhttp.MethodGet, "/api/v1/units/404")
	if code != 404 || env.Code != perr.ErrorCodeNotFound || env.Error != "work unit 404" {
		t.Fatalf("not found: %d %+v", code, env)
	}
	code, env = do(stdhttp.MethodPost, "/api/v1/runs")
	if code != 202 || env.Data != "processing started" {
		t.Fatalf("accepted: %d %+v", code, env)
	}
}
