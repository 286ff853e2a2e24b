// Package version carries build-time version metadata for the gstats binary.
package version

// Populated at build time via -ldflags "-X ...".
var (
	// Version is the semantic version of the release.
	Version = "dev"

	// Commit is the git hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)
