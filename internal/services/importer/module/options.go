package module

import "mixshift/internal/platform/config"

// Options controls importer wiring
type Options struct {
	// Sinks lists where rows go, first one authoritative: pg, clickhouse
	Sinks       []string
	ArtifactDir string
}

// FromConfig reads CORE_IMPORT_ options
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_IMPORT_")
	return Options{
		Sinks:       c.MayCSV("SINKS", []string{"pg"}),
		ArtifactDir: cfg.Prefix("CORE_HARVEST_").MayString("ARTIFACT_DIR", "var/artifacts"),
	}
}
