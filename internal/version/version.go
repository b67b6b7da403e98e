package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule  = "pkt.systems/cxconsole"
	unknownVersion = "v0.0.0-unknown"
	dirtySuffix    = "+dirty"
)

// buildVersion is set via -ldflags "-X pkt.systems/cxconsole/internal/version.buildVersion=...".
var buildVersion = ""

var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Module    string
	Version   string
	Revision  string
	CommitAt  time.Time
	Modified  bool
	GoVersion string
}

// Read collects build details from the linker flag and the embedded build info.
func Read() Info {
	out := Info{Module: defaultModule, Version: unknownVersion, GoVersion: runtime.Version()}
	info, ok := readBuildInfo()
	if ok && info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		out.Revision, out.CommitAt, out.Modified = vcsSettings(info)
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			out.Version = v
		} else if v := pseudoVersion(out.Revision, out.CommitAt); v != "" {
			out.Version = v
			if out.Modified {
				out.Version += dirtySuffix
			}
		}
	}
	if v := strings.TrimSpace(buildVersion); v != "" {
		out.Version = v
	}
	return out
}

// Current returns the version without a dirty suffix.
func Current() string {
	return strings.TrimSuffix(Read().Version, dirtySuffix)
}

// CurrentWithDirty returns the version including "+dirty" for modified builds.
func CurrentWithDirty() string {
	return Read().Version
}

// Module returns the main module path.
func Module() string {
	return Read().Module
}

// Lines renders the details printed by "version --verbose".
func (i Info) Lines() []string {
	lines := []string{"module:   " + i.Module, "version:  " + i.Version}
	if i.Revision != "" {
		rev := i.Revision
		if i.Modified {
			rev += " (modified)"
		}
		lines = append(lines, "revision: "+rev)
	}
	if !i.CommitAt.IsZero() {
		lines = append(lines, "commit:   "+i.CommitAt.UTC().Format(time.RFC3339))
	}
	return append(lines, "go:       "+i.GoVersion)
}

func vcsSettings(info *debug.BuildInfo) (string, time.Time, bool) {
	var (
		revision string
		at       time.Time
		modified bool
	)
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				at = parsed
			}
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	return revision, at, modified
}

func pseudoVersion(revision string, at time.Time) string {
	if revision == "" || at.IsZero() {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
}
