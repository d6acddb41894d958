// Package module provides the importer module
package module

import (
	"context"
	"strings"

	"mixshift/internal/adapters/artifact"
	"mixshift/internal/modkit"
	"mixshift/internal/modkit/httpkit"
	"mixshift/internal/platform/logger"
	"mixshift/internal/services/importer/domain"
	"mixshift/internal/services/importer/repo"
	"mixshift/internal/services/importer/service"
)

// Ports exposed by the importer module
type Ports struct {
	Importer domain.ImportPort
}

// Module implements modkit.Module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the importer module. A clickhouse sink without deps.CH is skipped
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)
	log := logger.Named("importer")

	binder := repo.NewPG()
	var sinks []domain.Sink
	for _, name := range opts.Sinks {
		switch strings.ToLower(name) {
		case "pg", "postgres":
			sinks = append(sinks, service.PGSink{DB: deps.PG, Binder: binder})
		case "clickhouse", "ch":
			if deps.CH == nil {
				log.Warn().Msg("clickhouse sink requested but clickhouse is disabled")
				continue
			}
			sinks = append(sinks, service.CHSink{CH: deps.CH, Clock: deps.Now()})
		default:
			log.Panic().Str("sink", name).Msg("unknown import sink")
		}
	}

	svc := service.New(deps.PG, binder, artifact.New(opts.ArtifactDir), sinks...)
	svc.Clock = deps.Now()

	return &Module{deps: deps, ports: Ports{Importer: svc}}
}

// Migrate applies the importer schema, plus the analytics table when clickhouse is on
func Migrate(ctx context.Context, deps modkit.Deps) error {
	if err := repo.Migrate(ctx, deps.PG); err != nil {
		return err
	}
	if deps.CH != nil {
		return deps.CH.Exec(ctx, service.CHSchema)
	}
	return nil
}

// Name implements modkit.Module
func (m *Module) Name() string { return "importer" }

// Ports implements modkit.Module
func (m *Module) Ports() any { return m.ports }

// Prefix implements modkit.Module
func (m *Module) Prefix() string { return "CORE_IMPORT_" }

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r httpkit.Router) {}
