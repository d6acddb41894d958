// Package modkit provides module wiring and core deps
package modkit

import (
	"mixshift/internal/modkit/repokit"
	"mixshift/internal/platform/clock"
	"mixshift/internal/platform/config"
	"mixshift/internal/platform/logger"
	"mixshift/internal/platform/store"
)

// Deps holds core dependencies passed to modules.
// CH is nil when the analytics sink is disabled
type Deps struct {
	Log   logger.Logger
	Cfg   config.Conf
	PG    repokit.TxRunner
	CH    store.Clickhouse
	Clock clock.Clock
}

// Now returns the deps clock, falling back to the system clock
func (d Deps) Now() clock.Clock {
	if d.Clock == nil {
		return clock.System{}
	}
	return d.Clock
}
