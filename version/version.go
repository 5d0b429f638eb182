// Package version exposes build version information.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// Set at build time with -ldflags "-X github.com/kbukum/sonago/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

var (
	buildOnce sync.Once
	buildVCS  Info
)

// vcs reads VCS stamps recorded by the go tool, once.
func vcs() Info {
	buildOnce.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		buildVCS.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				buildVCS.GitCommit = s.Value
			case "vcs.time":
				buildVCS.BuildTime = s.Value
			case "vcs.modified":
				buildVCS.Dirty = s.Value == "true"
			}
		}
	})
	return buildVCS
}

// Get returns build information. Values set with -ldflags take precedence
// over the VCS stamps.
func Get() Info {
	info := vcs()
	info.Version = Version
	if GitCommit != "" {
		info.GitCommit = GitCommit
	}
	if BuildTime != "" {
		info.BuildTime = BuildTime
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
	return info
}

// Short returns "<version>[-<commit>][-dirty]".
func Short() string {
	info := Get()
	parts := []string{info.Version}
	if info.GitCommit != "" {
		parts = append(parts, info.GitCommit)
	}
	if info.Dirty {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "-")
}

// String returns a one-line description for --version output.
func String() string {
	info := Get()
	s := fmt.Sprintf("sonago %s", Short())
	if info.BuildTime != "" {
		s += " (built " + info.BuildTime + ")"
	}
	if info.GoVersion != "" {
		s += " " + info.GoVersion
	}
	return s
}

// UserAgent returns the User-Agent sent to the sona server.
func UserAgent() string {
	return "sonago/" + Version
}
