// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata reported by the CLI and the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	Go        string `json:"go"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		Go:        runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("finassist version %s (commit: %s, built: %s, go: %s)",
		i.Version, i.Commit, i.BuildTime, i.Go)
}

func GetVersionInfo() string {
	return Get().String()
}
