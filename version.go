package saldo

import (
	"fmt"
	"runtime"
)

// Build metadata. Version carries the release tag; GitCommit and BuildDate
// are placeholders until a release build overrides them:
//
//	go build -ldflags "-X github.com/ambiyansyah-risyal/saldo.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "v1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns a one-line description of this build for banners and
// User-Agent strings.
func GetVersion() string {
	return fmt.Sprintf("Saldo %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// GetVersionInfo returns the build metadata as key/value pairs, shaped for
// structured log fields.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
