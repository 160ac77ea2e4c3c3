package constants

// Version information (injected at build time via -ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetFullVersion returns the complete version string for diagnostics.
func GetFullVersion() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
