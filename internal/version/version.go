package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.3.0-dev"

// Set with -ldflags "-X github.com/openmined/cloudsync/internal/version.Version=..."
var (
	AppName   = "CloudSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// applyBuildInfo fills whatever ldflags left at its default from the module
// version and vcs stamps.
func applyBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Detailed returns `0.3.0 (5e23a4; go1.24.0; linux/amd64; 2025-01-01T00:00:00Z)`
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

// UserAgent is sent by the HTTP providers, e.g. `CloudSync/0.3.0 (linux; amd64)`
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", AppName, Version, runtime.GOOS, runtime.GOARCH)
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
		applyBuildInfo(info.Main.Version, settings)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
