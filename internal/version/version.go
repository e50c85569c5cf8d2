// Package version holds build-time version metadata, overridden via
// -ldflags at release build time.
package version

var (
	// PackageName is the distributed binary's name.
	PackageName = "mvirtd"
	// Version is the release version, or "dev" for local builds.
	Version = "dev"
	// CommitHash is the git commit the binary was built from.
	CommitHash = "unknown"
	// BuildDate is when the binary was built.
	BuildDate = "unknown"
)
