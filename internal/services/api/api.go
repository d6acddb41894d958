// Package api wires the HTTP API onto a router
package api

import (
	"time"

	"mixshift/internal/modkit"
	"mixshift/internal/modkit/httpkit"
	"mixshift/internal/modkit/module"
	"mixshift/internal/platform/config"
	"mixshift/internal/platform/logger"
	phttp "mixshift/internal/platform/net/http"
	"mixshift/internal/platform/store"

	apiharvest "mixshift/internal/services/api/harvest/module"
	metamod "mixshift/internal/services/api/meta/module"
	harvestmod "mixshift/internal/services/harvest/module"
	importmod "mixshift/internal/services/importer/module"
)

// Options are the API options
type Options struct {
	Config        config.Conf
	Service       string
	Store         *store.Store
	Logger        *logger.Logger
	EnableSwagger bool
	CORSOrigins   []string
	SlowRequest   time.Duration
}

// Mount builds the worker modules, injects their ports into the api modules
// and mounts everything under /api/v1
func Mount(r phttp.Router, opt Options) []modkit.Module {
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}
	if opt.Logger != nil {
		deps.Log = *opt.Logger
	}

	importer := importmod.New(deps)
	imp := module.MustPortsOf[importmod.Ports](importer).Importer
	harvest := harvestmod.New(deps, imp, harvestmod.Options{})
	hp := module.MustPortsOf[harvestmod.Ports](harvest)

	mods := []modkit.Module{
		metamod.New(deps, opt.Service),
		importer,
		harvest,
		apiharvest.New(deps, apiharvest.Ports{Runner: hp.Runner, Query: hp.Query}),
	}

	if opt.EnableSwagger {
		phttp.MountDocs(r, apiharvest.OpenAPI)
	}
	httpkit.MountAPIV1(r, httpkit.CommonStack(httpkit.StackOptions{
		CORSOrigins: opt.CORSOrigins,
		SlowRequest: opt.SlowRequest,
	}), func(api httpkit.Router) {
		for _, m := range mods {
			m.MountRoutes(api)
		}
	})
	return mods
}
