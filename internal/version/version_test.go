package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	old := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { readBuildInfo = old })
}

func TestBuildVersionWins(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Path: "example.com/x", Version: "v9.9.9"}})
	old := buildVersion
	buildVersion = "v1.2.3"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
	if got := Module(); got != "example.com/x" {
		t.Fatalf("expected module from build info, got %q", got)
	}
}

func TestPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Path: "pkt.systems/cxconsole", Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	})
	want := "v0.0.0-20250102030405-1234567890ab"
	if got := CurrentWithDirty(); got != want+"+dirty" {
		t.Fatalf("unexpected dirty version %q", got)
	}
	if got := Current(); got != want {
		t.Fatalf("unexpected version %q", got)
	}
	joined := strings.Join(Read().Lines(), "\n")
	if !strings.Contains(joined, "revision: 1234567890abcdef (modified)") {
		t.Fatalf("missing revision line in\n%s", joined)
	}
}

func TestMissingBuildInfo(t *testing.T) {
	stubBuildInfo(t, nil)
	info := Read()
	if info.Version != unknownVersion || info.Module != defaultModule {
		t.Fatalf("unexpected fallback %+v", info)
	}
}
