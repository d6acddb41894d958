// Package version provides information about the build version of a binary.
package version

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information for service. The version, commit, and
// date variables are set at build time using -ldflags.
func Info(service string) BuildInfo {
	// -ldflags "-X 'mixshift/internal/core/version.version=v0.1.0'
	// -X 'mixshift/internal/core/version.commit=abcd' -X 'mixshift/internal/core/version.date=2026-10-14'"
	return BuildInfo{
		Service: service,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// String is the one line form used by --version
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ", " + b.Date + ")"
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
