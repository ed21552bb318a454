package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	if !strings.HasPrefix(info, "finassist version dev") {
		t.Errorf("unexpected version line %q", info)
	}
	if !strings.Contains(info, "commit: unknown") {
		t.Error("version info should report an unknown commit by default")
	}
	if !strings.Contains(info, runtime.Version()) {
		t.Errorf("version info should contain Go version %s", runtime.Version())
	}
}

func TestGet_Stamped(t *testing.T) {
	is := is.New(t)

	origVersion, origCommit, origBuild := Version, GitCommit, BuildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuild
	})

	Version = "v1.2.0"
	GitCommit = "abc123"
	BuildTime = "2025-09-01T00:00:00Z"

	got := Get()
	is.Equal(got, Info{Version: "v1.2.0", Commit: "abc123", BuildTime: "2025-09-01T00:00:00Z", Go: runtime.Version()})
	is.Equal(got.String(), GetVersionInfo())
}
