package version

// These variables are set at build time via -ldflags
// Example: go build -ldflags "-X github.com/pysugar/microblog/internal/version.Version=v0.1.0"
var (
	// Version is the semantic version of the application
	Version = "dev"

	// Commit is the git commit hash
	Commit = "none"

	// BuildTime is the timestamp of the build
	BuildTime = "unknown"
)

// String is the one-line form printed by the version command.
func String() string {
	return Version + " (commit " + Commit + ", built " + BuildTime + ")"
}
