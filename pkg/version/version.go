// Package version exposes the build identity of the failoverd binary.
package version

import (
	"runtime/debug"
	"strings"
)

const devMarker = "0.1.0-dev"

// Version identifies the running build. Release builds override it via
// -ldflags "-X github.com/failoverd/failoverd/pkg/version.Version=<value>";
// otherwise it is derived from the embedded module build info, falling back
// to the vcs revision for plain `go build` trees.
var Version = devMarker

var readBuildInfo = debug.ReadBuildInfo

func init() {
	Version = deriveVersion(Version)
}

func deriveVersion(current string) string {
	if current != "" && current != devMarker {
		return current
	}

	info, ok := readBuildInfo()
	if !ok || info == nil {
		return current
	}

	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}

	var (
		revision string
		dirty    bool
	)
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = strings.TrimSpace(setting.Value)
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision == "" {
		return current
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if dirty {
		revision += "-dirty"
	}
	return "devel+" + revision
}
