// Package version holds build metadata, normally stamped via -ldflags at
// build time (e.g. -X github.com/duskline/bunker/internal/version.Version=1.2.3).
package version

var (
	// Version is the release tag this binary was built from.
	Version = "dev"
	// Commit is the short git commit SHA this binary was built from.
	Commit = "unknown"
)
