// Package version carries build identity for the blackskyd binary.
//
// The variables are stamped at build time:
//
//	go build -ldflags "-X github.com/madariss5/BLACKSKYMD-sub006/internal/version.Version=1.2.0 \
//	                   -X github.com/madariss5/BLACKSKYMD-sub006/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/madariss5/BLACKSKYMD-sub006/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp in ISO 8601.
	BuildTime = "unknown"
)

// String returns the full human-readable build identity.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies this build in gateway handshakes.
func UserAgent() string {
	return "blackskyd/" + Version
}
