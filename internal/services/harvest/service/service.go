// Package service drives report tasks through request, status, download and
// import, and recovers the ones a crash left behind
package service

import (
	"context"
	"slices"
	"time"

	"mixshift/internal/core/breaker"
	"mixshift/internal/core/period"
	"mixshift/internal/core/ratelimit"
	"mixshift/internal/core/retry"
	"mixshift/internal/modkit/repokit"
	"mixshift/internal/platform/clock"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/harvest/domain"
	"mixshift/internal/services/harvest/guardrails"
)

// Gate limits which users may run outside production
type Gate struct {
	Production bool
	Users      []string
}

// Allows reports whether userID may be processed
func (g Gate) Allows(userID string) bool {
	return g.Production || slices.Contains(g.Users, userID)
}

// query turns a run request into a seller query with the allow-list applied
func (g Gate) query(req domain.RunRequest) domain.SellerQuery {
	q := domain.SellerQuery{UserID: req.UserID, SellerID: req.SellerID}
	if !g.Production {
		q.Users = append([]string{}, g.Users...)
		if len(q.Users) == 0 {
			// an empty allow-list outside production matches nobody
			q.Users = []string{""}
		}
	}
	return q
}

// Config carries the retry and watchdog knobs
type Config struct {
	Gate Gate

	MaxRequestAttempts  int
	MaxStatusAttempts   int
	MaxDownloadAttempts int
	Backoff             clock.Linear
	InitialDelay        time.Duration

	StuckAfter         time.Duration
	NotifyAfterRetries int
	WatchdogBatch      int
	ImportBatch        int

	Timeouts guardrails.Timeouts
}

// Deps are the collaborators of the service. DB, Binder, API and Tokens are required
type Deps struct {
	DB        repokit.TxRunner
	Binder    repokit.Binder[domain.Repo]
	API       domain.ReportsAPI
	Tokens    domain.Tokens
	Notifier  domain.Notifier
	Importer  domain.Importer
	Artifacts domain.ArtifactStore

	Calendar *period.Calculator
	Breaker  *breaker.Breaker
	Limiter  *ratelimit.Limiter
	Retry    *retry.Engine
	Clock    clock.Clock
	Sleeper  clock.Sleeper
	Lease    guardrails.Lease
}

// Service implements domain.RunnerPort and domain.QueryPort
type Service struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
	repo   domain.Repo

	api       domain.ReportsAPI
	tokens    domain.Tokens
	notifier  domain.Notifier
	importer  domain.Importer
	artifacts domain.ArtifactStore

	cal     *period.Calculator
	breaker *breaker.Breaker
	limiter *ratelimit.Limiter
	engine  *retry.Engine
	clock   clock.Clock
	sleeper clock.Sleeper
	lease   guardrails.Lease

	cfg Config
}

// New constructs the service, filling optional deps and zero config with defaults
func New(d Deps, cfg Config) *Service {
	if d.DB == nil || d.Binder == nil {
		panic("harvest.Service requires a TxRunner and a repo binder")
	}
	if d.API == nil || d.Tokens == nil {
		panic("harvest.Service requires a reports api and a token provider")
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Sleeper == nil {
		d.Sleeper = clock.Delay{}
	}
	if d.Calendar == nil {
		d.Calendar = period.NewCalculator(period.DefaultSchedule(), d.Clock)
	}
	if d.Breaker == nil {
		d.Breaker = breaker.New(breaker.Config{}, d.Clock)
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(ratelimit.Config{}, d.Clock, d.Sleeper)
	}
	if d.Retry == nil {
		d.Retry = retry.NewEngine(d.Clock, d.Sleeper)
	}
	if d.Notifier == nil {
		d.Notifier = logNotifier{}
	}

	cfg.MaxRequestAttempts = max(cfg.MaxRequestAttempts, 1)
	if cfg.MaxStatusAttempts <= 0 {
		cfg.MaxStatusAttempts = 10
	}
	if cfg.MaxDownloadAttempts <= 0 {
		cfg.MaxDownloadAttempts = 3
	}
	if cfg.Backoff == (clock.Linear{}) {
		cfg.Backoff = clock.Linear{Base: 30 * time.Second, Step: 30 * time.Second, Max: 5 * time.Minute}
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = time.Hour
	}
	if cfg.NotifyAfterRetries <= 0 {
		cfg.NotifyAfterRetries = 3
	}
	if cfg.WatchdogBatch <= 0 {
		cfg.WatchdogBatch = 50
	}
	if cfg.ImportBatch <= 0 {
		cfg.ImportBatch = 100
	}

	return &Service{
		db:        d.DB,
		binder:    d.Binder,
		repo:      d.Binder.Bind(d.DB),
		api:       d.API,
		tokens:    d.Tokens,
		notifier:  d.Notifier,
		importer:  d.Importer,
		artifacts: d.Artifacts,
		cal:       d.Calendar,
		breaker:   d.Breaker,
		limiter:   d.Limiter,
		engine:    d.Retry,
		clock:     d.Clock,
		sleeper:   d.Sleeper,
		lease:     d.Lease,
		cfg:       cfg,
	}
}

// tx runs fn with a repo bound to one transaction
func (s *Service) tx(ctx context.Context, fn func(r domain.Repo) error) error {
	return repokit.WithTx(ctx, s.db, func(q repokit.Queryer) error {
		return fn(s.binder.Bind(q))
	})
}

type logNotifier struct{}

func (logNotifier) SendFailure(ctx context.Context, f domain.Failure) {
	logger.C(ctx).Warn().
		Int64("work_unit_id", f.WorkUnitID).
		Str("seller_id", f.SellerID).
		Str("report_type", f.Type.String()).
		Int("retry_count", f.RetryCount).
		Bool("fatal", f.Fatal).
		Str("report_id", f.ReportID).
		Msg(f.Message)
}
