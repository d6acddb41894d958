package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mixshift/internal/core/period"
	harvestdom "mixshift/internal/services/harvest/domain"
	harvestmod "mixshift/internal/services/harvest/module"
)

type fakeRunner struct {
	lastReq  harvestdom.RunRequest
	lastUnit int64
	lastType period.Type
	sweeps   atomic.Int32
	err      error
}

func (f *fakeRunner) RunOnce(_ context.Context, req harvestdom.RunRequest) (harvestdom.RunResult, error) {
	f.lastReq = req
	return harvestdom.RunResult{RunID: "run-1", SellerID: req.SellerID}, f.err
}

func (f *fakeRunner) RetryStuckUnit(_ context.Context, id int64, t harvestdom.ReportType) (harvestdom.PhaseSnapshot, error) {
	f.lastUnit, f.lastType = id, t
	return harvestdom.PhaseSnapshot{WorkUnitID: id, Type: t.String()}, f.err
}

func (f *fakeRunner) Watchdog(context.Context) (harvestdom.WatchdogResult, error) {
	f.sweeps.Add(1)
	return harvestdom.WatchdogResult{Scanned: 2, Recovered: 1}, f.err
}

func (f *fakeRunner) ImportPending(context.Context) (harvestdom.ImportPendingResult, error) {
	return harvestdom.ImportPendingResult{Attempted: 1, Imported: 1}, f.err
}

func (f *fakeRunner) CheckPhase(_ context.Context, id int64, t harvestdom.ReportType) (harvestdom.PhaseSnapshot, error) {
	return harvestdom.PhaseSnapshot{WorkUnitID: id, Type: t.String()}, f.err
}

type harness struct {
	fr       *fakeRunner
	opts     harvestmod.Options
	migrated bool
	closed   bool
	opened   int
}

func (h *harness) open(_ context.Context, o harvestmod.Options) (*wiring, error) {
	h.opened++
	h.opts = o
	return &wiring{
		Runner:  h.fr,
		Query:   h.fr,
		Migrate: func(context.Context) error { h.migrated = true; return nil },
		Close:   func() error { h.closed = true; return nil },
	}, nil
}

func execute(t *testing.T, h *harness, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(h.open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunOnceFlags(t *testing.T) {
	t.Parallel()
	h := &harness{fr: &fakeRunner{}}
	out, err := execute(t, h, "run-once", "--seller", "A1SELLER", "--user", "u1", "--production")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if h.fr.lastReq.SellerID != "A1SELLER" || h.fr.lastReq.UserID != "u1" {
		t.Fatalf("req = %+v", h.fr.lastReq)
	}
	if !h.opts.Production {
		t.Fatalf("--production not forwarded")
	}
	var res harvestdom.RunResult
	if err := json.Unmarshal([]byte(out), &res); err != nil || res.RunID != "run-1" {
		t.Fatalf("output = %q (%v)", out, err)
	}
	if !h.closed {
		t.Fatalf("wiring not closed")
	}
}

func TestRetryParsesArgs(t *testing.T) {
	t.Parallel()
	h := &harness{fr: &fakeRunner{}}
	if _, err := execute(t, h, "retry", "42", "month"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if h.fr.lastUnit != 42 || h.fr.lastType != period.Month {
		t.Fatalf("unit=%d type=%s", h.fr.lastUnit, h.fr.lastType)
	}

	for _, args := range [][]string{{"retry", "x", "WEEK"}, {"retry", "0", "WEEK"}, {"retry", "1", "DAY"}, {"check", "1"}} {
		if _, err := execute(t, h, args...); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestCheckAndImportPending(t *testing.T) {
	t.Parallel()
	h := &harness{fr: &fakeRunner{}}
	out, err := execute(t, h, "check", "7", "QUARTER")
	if err != nil || !strings.Contains(out, `"work_unit_id": 7`) {
		t.Fatalf("check = %q, %v", out, err)
	}
	out, err = execute(t, h, "import-pending")
	if err != nil || !strings.Contains(out, `"imported": 1`) {
		t.Fatalf("import-pending = %q, %v", out, err)
	}
}

func TestMigrate(t *testing.T) {
	t.Parallel()
	h := &harness{fr: &fakeRunner{}}
	out, err := execute(t, h, "migrate")
	if err != nil || !h.migrated || !strings.Contains(out, "schema up to date") {
		t.Fatalf("migrate = %q, %v (migrated=%v)", out, err, h.migrated)
	}
}

func TestRunnerErrorFailsCommand(t *testing.T) {
	t.Parallel()
	h := &harness{fr: &fakeRunner{err: errors.New("boom")}}
	if _, err := execute(t, h, "watchdog"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHelpSkipsWiring(t *testing.T) {
	t.Parallel()
	h := &harness{fr: &fakeRunner{}}
	if _, err := execute(t, h, "help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	if h.opened != 0 {
		t.Fatalf("help opened the store")
	}
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- loop(ctx, time.Millisecond, func(context.Context) {
			if n.Add(1) == 3 {
				cancel()
			}
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not stop")
	}
	if n.Load() < 3 {
		t.Fatalf("passes = %d", n.Load())
	}
}
