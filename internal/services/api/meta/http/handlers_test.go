package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"mixshift/internal/platform/clock"
	phttp "mixshift/internal/platform/net/http"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, d Deps, path string) (int, map[string]any) {
	t.Helper()
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), d)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, path, nil))
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	return w.Code, env.Data
}

func TestReady(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		pg, ch any
		code   int
		status string
	}{
		{"all ok", pinger{}, pinger{}, 200, "ok"},
		{"no clickhouse", pinger{}, nil, 200, "ok"},
		{"clickhouse down", pinger{}, pinger{errors.New("down")}, 200, "degraded"},
		{"postgres down", pinger{errors.New("refused")}, nil, 503, "fail"},
		{"postgres unknown", struct{}{}, nil, 200, "degraded"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			code, data := get(t, Deps{ServiceName: "mixshift-api", PG: c.pg, CH: c.ch}, "/ready")
			if code != c.code || data["status"] != c.status {
				t.Fatalf("code=%d data=%v", code, data)
			}
		})
	}
}

func TestVersionAndService(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start.Add(90 * time.Second))
	d := Deps{ServiceName: "mixshift-api", StartedAt: start, Clock: fc}

	if _, data := get(t, d, "/version"); data["service"] != "mixshift-api" || data["version"] != "dev" {
		t.Fatalf("version = %v", data)
	}
	if _, data := get(t, d, "/service"); data["uptime"] != float64(90) {
		t.Fatalf("service = %v", data)
	}
}
