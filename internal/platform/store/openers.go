package store

import (
	"context"
	"fmt"
	"time"

	"mixshift/internal/platform/clock"
	chx "mixshift/internal/platform/store/ch"
	"mixshift/internal/platform/store/pg"
)

var pingBackoff = clock.Linear{Base: 150 * time.Millisecond, Step: 250 * time.Millisecond, Max: 2 * time.Second}

// openPG opens the pool and waits for it to answer before handing it out
func openPG(ctx context.Context, cfg PGConfig, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.LogSQL {
		tracer = pg.Tracer(s.Log)
	}
	p, err := pg.Open(ctx, pg.Config{URL: cfg.URL, MaxConns: cfg.MaxConns, SlowMs: cfg.SlowQueryMs}, tracer, nil)
	if err != nil {
		return nil, err
	}

	attempts := max(cfg.PingRetries, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = p.Pool.Ping(pctx)
		cancel()
		if lastErr == nil {
			return newPGAdapter(p), nil
		}
		if err := (clock.Delay{}).Sleep(ctx, pingBackoff.For(i), "postgres not ready"); err != nil {
			p.Close()
			return nil, err
		}
	}
	p.Close()
	return nil, fmt.Errorf("postgres ping failed after %d attempts: %w", attempts, lastErr)
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{URL: cfg.CH.URL, ClientName: cfg.CH.ClientName, ClientTag: cfg.CH.ClientTag})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
