// Package version holds build information set at link time.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   string // Set via ldflags.
	Branch    string
	BuildUser string
	BuildDate string

	Revision  = getRevision()
	GoVersion = runtime.Version()
	GoOS      = runtime.GOOS
	GoArch    = runtime.GOARCH
)

// GetVersion returns the release version, or the VCS revision for
// development builds.
func GetVersion() string {
	if Version != "" {
		return Version
	}

	return Revision
}

func getRevision() string {
	rev := "unknown"

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			if len(v.Value) > 7 {
				rev = v.Value[:7]
			} else {
				rev = v.Value
			}

		case "vcs.modified":
			if v.Value == "true" {
				modified = true
			}
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}

// String formats the build information for display.
func String() string {
	s := fmt.Sprintf("%s version %s (%s %s/%s)", "loadout", GetVersion(), GoVersion, GoOS, GoArch)
	if Branch != "" {
		s += fmt.Sprintf("\n  branch: %s", Branch)
	}

	if BuildUser != "" || BuildDate != "" {
		s += fmt.Sprintf("\n  built by %s on %s", BuildUser, BuildDate)
	}

	return s
}
