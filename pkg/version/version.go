// Package version exposes the application version derived from build metadata.
//
// Go 1.18+ automatically embeds VCS info (git commit, dirty flag, etc.)
// into the binary via runtime/debug.BuildInfo. No -ldflags required.
package version

import "runtime/debug"

// AppName is the application name used in schema metadata and logging.
const AppName = "dumpscope"

// SchemaVersion is the report schema version gate used by the disk cache
// (pkg/reportcache) and report metadata. Bump whenever the report tree
// shape changes in a way that invalidates cached reports.
const SchemaVersion = 1

// GitCommit is the short git commit hash (8 chars) from build info.
// Set to "dev" when build info is unavailable (e.g. `go test`).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "dumpscope/<commit>" for use in logging and handshake metadata.
func Full() string {
	return AppName + "/" + GitCommit
}
