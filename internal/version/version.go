// Package version reports which build of ucd is running. The values end up
// in `ucd version`, the TUI title and the User-Agent sent to controllers.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Version and Commit are stamped by the release build:
//
//	go build -ldflags="-X github.com/muurk/ucd/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/ucd/internal/version.Commit=abc1234"
//
// Development builds derive them from the embedded VCS settings instead.
var (
	Version = ""
	Commit  = ""
)

// Date is the commit time of a development build, if known.
var Date time.Time

const shortCommitLen = 7

func init() {
	info, ok := debug.ReadBuildInfo()
	if ok {
		applyBuildSettings(info.Settings)
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// applyBuildSettings fills whatever ldflags left empty from the VCS keys of
// the build info. A modified tree gets a "-dirty" commit suffix, and a
// development version carries the commit date.
func applyBuildSettings(settings []debug.BuildSetting) {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			vcs[s.Key] = s.Value
		}
	}

	if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
		Date = t
	}

	if Commit == "" {
		if rev := vcs["vcs.revision"]; rev != "" {
			Commit = rev[:min(len(rev), shortCommitLen)]
			if vcs["vcs.modified"] == "true" {
				Commit += "-dirty"
			}
		}
	}

	if Version == "" && !Date.IsZero() {
		Version = "dev-" + Date.UTC().Format("20060102")
	}
}

// Full returns the version with its commit, e.g. "v1.2.3 (commit: abc1234)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent identifies this client in controller access logs.
func UserAgent() string {
	return fmt.Sprintf("ucd/%s (%s; %s/%s)", Version, Commit, runtime.GOOS, runtime.GOARCH)
}
