package modkit

import (
	phttp "mixshift/internal/platform/net/http"
)

// Module is the common surface for modules that can mount routes and expose ports
type Module interface {
	// MountRoutes mounts HTTP routes under the provided router; worker only modules no-op
	MountRoutes(r phttp.Router)
	// Ports returns the module's port set for cross wiring
	Ports() any
	// Name returns the module name
	Name() string
}
