package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mixshift/internal/platform/config"
)

type fakePG struct {
	RowQuerier
	pingErr error
	closed  bool
}

func (f *fakePG) Tx(context.Context, func(RowQuerier) error) error { return nil }
func (f *fakePG) Ping(context.Context) error                        { return f.pingErr }
func (f *fakePG) Close() error                                      { f.closed = true; return nil }

type fakeCH struct {
	pingErr  error
	closeErr error
}

func (f *fakeCH) Exec(context.Context, string, ...any) error    { return nil }
func (f *fakeCH) Insert(context.Context, string, [][]any) error { return nil }
func (f *fakeCH) Ping(context.Context) error                    { return f.pingErr }
func (f *fakeCH) Close() error                                  { return f.closeErr }

func TestGuard(t *testing.T) {
	t.Parallel()
	var nilStore *Store
	if err := nilStore.Guard(context.Background()); err == nil {
		t.Fatalf("nil store should error")
	}

	s := &Store{PG: &fakePG{}, CH: &fakeCH{}}
	if err := s.Guard(context.Background()); err != nil {
		t.Fatalf("healthy guard: %v", err)
	}

	s = &Store{PG: &fakePG{pingErr: errors.New("down")}, CH: &fakeCH{pingErr: errors.New("gone")}}
	err := s.Guard(context.Background())
	if err == nil || !strings.Contains(err.Error(), "pg: down") || !strings.Contains(err.Error(), "ch: gone") {
		t.Fatalf("guard err = %v", err)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	pg := &fakePG{}
	s := &Store{PG: pg, CH: &fakeCH{closeErr: errors.New("ch close")}}
	if err := s.Close(); err == nil || !strings.Contains(err.Error(), "ch close") {
		t.Fatalf("close err = %v", err)
	}
	if !pg.closed {
		t.Fatalf("pg not closed")
	}
	if err := (&Store{}).Close(); err != nil {
		t.Fatalf("empty store close: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SERVICE_PGSQL_URL", "postgres://u:p@localhost:5432/mixshift")
	t.Setenv("SERVICE_PGSQL_MAX_CONNS", "4")
	cfg := FromEnv(config.New(), "cron")
	if !cfg.PG.Enabled || cfg.PG.MaxConns != 4 || cfg.CH.Enabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	t.Setenv("SERVICE_CLICKHOUSE_URL", "clickhouse://localhost:9000/default")
	if cfg := FromEnv(config.New(), "cron"); !cfg.CH.Enabled || cfg.CH.ClientName != "cron" {
		t.Fatalf("ch cfg = %+v", cfg.CH)
	}
}
