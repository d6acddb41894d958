package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	perr "mixshift/internal/platform/errors"
	phttp "mixshift/internal/platform/net/http"
	"mixshift/internal/services/harvest/domain"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    []domain.RunRequest
	retries []int64
	sweeps  int
	imports int
}

func (f *fakeRunner) RunOnce(_ context.Context, req domain.RunRequest) (domain.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, req)
	return domain.RunResult{RunID: "r1"}, nil
}

func (f *fakeRunner) RetryStuckUnit(_ context.Context, id int64, _ domain.ReportType) (domain.PhaseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, id)
	return domain.PhaseSnapshot{WorkUnitID: id}, nil
}

func (f *fakeRunner) Watchdog(context.Context) (domain.WatchdogResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return domain.WatchdogResult{}, nil
}

func (f *fakeRunner) ImportPending(context.Context) (domain.ImportPendingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imports++
	return domain.ImportPendingResult{}, nil
}

type fakeQuery struct{}

func (fakeQuery) CheckPhase(_ context.Context, id int64, t domain.ReportType) (domain.PhaseSnapshot, error) {
	if id == 404 {
		return domain.PhaseSnapshot{}, perr.NotFoundf("work unit %d", id)
	}
	return domain.PhaseSnapshot{WorkUnitID: id, Type: t.String(), Phase: domain.PhaseCheckingStatus.String()}, nil
}

func serve(t *testing.T) (*chi.Mux, *Handlers, *fakeRunner) {
	t.Helper()
	fr := &fakeRunner{}
	h := &Handlers{Runner: fr, Query: fakeQuery{}}
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), h)
	return mux, h, fr
}

func do(mux *chi.Mux, method, path, body string) (*httptest.ResponseRecorder, phttp.Envelope) {
	var req *stdhttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var env phttp.Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRunIsAcceptedAndDetached(t *testing.T) {
	t.Parallel()
	mux, h, fr := serve(t)

	w, env := do(mux, stdhttp.MethodPost, "/runs", `{"seller_id":"A1SELLER"}`)
	if w.Code != stdhttp.StatusAccepted {
		t.Fatalf("code = %d body=%s", w.Code, w.Body)
	}
	if data, _ := env.Data.(map[string]any); data["message"] != "processing started" {
		t.Fatalf("data = %v", env.Data)
	}
	h.Wait()
	if len(fr.runs) != 1 || fr.runs[0].SellerID != "A1SELLER" {
		t.Fatalf("runs = %+v", fr.runs)
	}
}

func TestRunAcceptsEmptyBody(t *testing.T) {
	t.Parallel()
	mux, h, fr := serve(t)
	if w, _ := do(mux, stdhttp.MethodPost, "/runs", ""); w.Code != stdhttp.StatusAccepted {
		t.Fatalf("code = %d", w.Code)
	}
	h.Wait()
	if len(fr.runs) != 1 {
		t.Fatalf("runs = %d", len(fr.runs))
	}
}

func TestRunRejectsBadBody(t *testing.T) {
	t.Parallel()
	mux, h, fr := serve(t)
	for _, body := range []string{`{"bogus":1}`, `{"seller_id":"has space"}`, `{`} {
		if w, _ := do(mux, stdhttp.MethodPost, "/runs", body); w.Code != stdhttp.StatusBadRequest {
			t.Fatalf("%s: code = %d", body, w.Code)
		}
	}
	h.Wait()
	if len(fr.runs) != 0 {
		t.Fatalf("invalid bodies must not start a run")
	}
}

func TestCheckPhase(t *testing.T) {
	t.Parallel()
	mux, _, _ := serve(t)

	w, env := do(mux, stdhttp.MethodGet, "/units/7/month", "")
	if w.Code != stdhttp.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	data, _ := env.Data.(map[string]any)
	if data == nil || data["work_unit_id"] != float64(7) {
		t.Fatalf("data = %v", env.Data)
	}

	if w, _ := do(mux, stdhttp.MethodGet, "/units/404/WEEK", ""); w.Code != stdhttp.StatusNotFound {
		t.Fatalf("missing unit code = %d", w.Code)
	}
	if w, env := do(mux, stdhttp.MethodGet, "/units/x/WEEK", ""); w.Code != stdhttp.StatusUnprocessableEntity || env.Field != "id" {
		t.Fatalf("bad id = %d %+v", w.Code, env)
	}
	if w, env := do(mux, stdhttp.MethodGet, "/units/7/DAY", ""); w.Code != stdhttp.StatusUnprocessableEntity || env.Field != "type" {
		t.Fatalf("bad type = %d %+v", w.Code, env)
	}
}

func TestRetryChecksThenDetaches(t *testing.T) {
	t.Parallel()
	mux, h, fr := serve(t)

	if w, _ := do(mux, stdhttp.MethodPost, "/units/404/WEEK/retry", ""); w.Code != stdhttp.StatusNotFound {
		t.Fatalf("missing unit code = %d", w.Code)
	}
	w, env := do(mux, stdhttp.MethodPost, "/units/9/quarter/retry", "")
	if w.Code != stdhttp.StatusAccepted {
		t.Fatalf("code = %d", w.Code)
	}
	if data, _ := env.Data.(map[string]any); data["report_type"] != "QUARTER" {
		t.Fatalf("data = %v", env.Data)
	}
	h.Wait()
	if len(fr.retries) != 1 || fr.retries[0] != 9 {
		t.Fatalf("retries = %v", fr.retries)
	}
}

func TestWatchdogAndImports(t *testing.T) {
	t.Parallel()
	mux, h, fr := serve(t)
	if w, _ := do(mux, stdhttp.MethodPost, "/watchdog", ""); w.Code != stdhttp.StatusAccepted {
		t.Fatalf("watchdog code = %d", w.Code)
	}
	if w, _ := do(mux, stdhttp.MethodPost, "/imports", ""); w.Code != stdhttp.StatusAccepted {
		t.Fatalf("imports code = %d", w.Code)
	}
	h.Wait()
	if fr.sweeps != 1 || fr.imports != 1 {
		t.Fatalf("sweeps=%d imports=%d", fr.sweeps, fr.imports)
	}
}
