package module

import (
	"time"

	"mixshift/internal/platform/config"
)

// Options tunes the api module
type Options struct {
	// RatePoints requests per RateWindow per client ip
	RatePoints int
	RateWindow time.Duration
}

// FromConfig reads CORE_API_HARVEST_ options
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_API_HARVEST_")
	return Options{
		RatePoints: c.MayInt("RATE_POINTS", 30),
		RateWindow: c.MayDuration("RATE_WINDOW", time.Minute),
	}
}
