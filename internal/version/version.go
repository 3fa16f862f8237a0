// Package version identifies the running groom build.
package version

import (
	"os"
	"runtime/debug"
	"sync"

	"github.com/roach88/groom/internal/fingerprint"
)

// Version constants for the cache schema and CLI.
const (
	// SchemaVersion changes whenever a cache table's layout or key semantics
	// change. Bumping it resets every existing cache.
	SchemaVersion = "1"

	// Version is the groom release.
	Version = "0.1.0"
)

// BuildID is injected at link time:
//
//	go build -ldflags "-X github.com/roach88/groom/internal/version.BuildID=$(git rev-parse HEAD)"
var BuildID string

// BinaryID returns the identity of this build plus the cache schema version.
// A cache written under a different BinaryID is discarded.
var BinaryID = sync.OnceValue(func() string {
	return buildID() + "/schema-" + SchemaVersion
})

func buildID() string {
	if BuildID != "" {
		return BuildID
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		var rev, modified string
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				rev = s.Value
			case "vcs.modified":
				modified = s.Value
			}
		}
		if rev != "" && modified != "true" {
			return rev
		}
	}
	// Dirty or unstamped builds: the executable's own bytes.
	if exe, err := os.Executable(); err == nil {
		if sum, err := fingerprint.File(exe); err == nil {
			return "exe-" + sum.String()
		}
	}
	return "dev-" + Version
}
