// Package module wires the harvest service and exposes its ports
package module

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mixshift/internal/adapters/artifact"
	"mixshift/internal/adapters/notify"
	"mixshift/internal/adapters/spapi"
	"mixshift/internal/core/breaker"
	"mixshift/internal/core/period"
	"mixshift/internal/core/ratelimit"
	"mixshift/internal/modkit"
	"mixshift/internal/modkit/httpkit"
	"mixshift/internal/platform/clock"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/harvest/domain"
	"mixshift/internal/services/harvest/guardrails"
	"mixshift/internal/services/harvest/repo"
	"mixshift/internal/services/harvest/service"
)

// Module defines the harvest module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New constructs the harvest module. imp lands downloaded artifacts and may be nil
// when only status inspection is needed. Non-zero overrides win over env
func New(deps modkit.Deps, imp domain.Importer, overrides Options) *Module {
	opts := merge(FromConfig(deps.Cfg), overrides)
	log := logger.Named("harvest")

	sched := period.DefaultSchedule()
	sched.Location = opts.Location
	sched.MaxPending = opts.MaxPending
	if opts.ScheduleFile != "" {
		s, err := LoadSchedule(opts.ScheduleFile, sched)
		if err != nil {
			log.Panic().Err(err).Str("path", opts.ScheduleFile).Msg("invalid schedule policy")
		}
		sched = s
	}

	clk := deps.Now()
	sleeper := clock.Delay{}
	svc := service.New(service.Deps{
		DB:     deps.PG,
		Binder: repo.NewPG(),
		API: service.Reports(spapi.NewClient(spapi.Options{
			Endpoint: opts.Endpoint,
			Timeout:  opts.HTTPTimeout,
		})),
		Tokens: spapi.NewTokenProvider(spapi.TokenOptions{
			TokenURL:     opts.TokenURL,
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
		}),
		Notifier:  service.Notifications(notify.New(sender(opts), opts.NotifyTo)),
		Importer:  imp,
		Artifacts: artifact.New(opts.ArtifactDir),
		Calendar:  period.NewCalculator(sched, clk),
		Breaker:   breaker.New(breaker.Config{Threshold: opts.BreakerThreshold, Timeout: opts.BreakerTimeout}, clk),
		Limiter:   ratelimit.New(ratelimit.Config{Points: opts.RatePoints, Window: opts.RateWindow}, clk, sleeper),
		Clock:     clk,
		Sleeper:   sleeper,
		Lease:     guardrails.MakeSellerLease(deps.PG, "harvest-"+uuid.NewString()[:8], opts.LeaseTTL),
	}, service.Config{
		Gate:                service.Gate{Production: opts.Production, Users: opts.DevUsers},
		MaxRequestAttempts:  opts.MaxRequestAttempts,
		MaxStatusAttempts:   opts.MaxStatusAttempts,
		MaxDownloadAttempts: opts.MaxDownloadAttempts,
		Backoff:             clock.Linear{Base: opts.BackoffBase, Step: opts.BackoffStep, Max: opts.BackoffMax},
		InitialDelay:        opts.InitialDelay,
		StuckAfter:          opts.StuckAfter,
		NotifyAfterRetries:  opts.NotifyAfterRetries,
		WatchdogBatch:       opts.WatchdogBatch,
		ImportBatch:         opts.ImportBatch,
		Timeouts: guardrails.Timeouts{
			Run:    opts.RunTimeout,
			Call:   opts.CallTimeout,
			Import: opts.ImportTimeout,
		},
	})

	log.Info().
		Bool("production", opts.Production).
		Str("timezone", sched.Location.String()).
		Int("max_status_attempts", opts.MaxStatusAttempts).
		Dur("stuck_after", opts.StuckAfter).
		Msg("harvest module ready")

	return &Module{deps: deps, opts: opts, ports: Ports{Runner: svc, Query: svc}}
}

// sender picks SES when enabled; a failed setup falls back to logging
func sender(opts Options) notify.Sender {
	if !opts.SES {
		return notify.LogSender{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := notify.NewSESSender(ctx, opts.NotifyFrom)
	if err != nil {
		logger.Named("harvest").Warn().Err(err).Msg("ses unavailable; notifications go to the log")
		return notify.LogSender{}
	}
	return s
}

func merge(o, x Options) Options {
	if x.Production {
		o.Production = true
	}
	if x.DevUsers != nil {
		o.DevUsers = x.DevUsers
	}
	if x.ScheduleFile != "" {
		o.ScheduleFile = x.ScheduleFile
	}
	if x.MaxStatusAttempts != 0 {
		o.MaxStatusAttempts = x.MaxStatusAttempts
	}
	if x.InitialDelay != 0 {
		o.InitialDelay = x.InitialDelay
	}
	if x.StuckAfter != 0 {
		o.StuckAfter = x.StuckAfter
	}
	if x.ArtifactDir != "" {
		o.ArtifactDir = x.ArtifactDir
	}
	if x.Endpoint != "" {
		o.Endpoint = x.Endpoint
	}
	if x.TokenURL != "" {
		o.TokenURL = x.TokenURL
	}
	return o
}

// Name returns the module name
func (m *Module) Name() string { return "harvest" }

// Ports returns the module ports (Runner, Query)
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module config prefix
func (m *Module) Prefix() string { return "CORE_HARVEST_" }

// Options returns the resolved options
func (m *Module) Options() Options { return m.opts }

// MountRoutes mounts nothing; the HTTP surface lives in services/api/harvest
func (m *Module) MountRoutes(_ httpkit.Router) {}
