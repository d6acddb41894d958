package module

import "mixshift/internal/services/harvest/domain"

// Ports defines harvest module ports exposed via the registry
type Ports struct {
	Runner domain.RunnerPort
	Query  domain.QueryPort
}
