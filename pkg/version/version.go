// Package version reports the build of the running binary.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/gorelay/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/gorelay/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/gorelay/pkg/version.date=2026-01-01"
//
// Without them the VCS stamp embedded by the Go toolchain is used, if any.
package version

import (
	"runtime/debug"
	"sync"
)

var (
	tag    = ""
	commit = ""
	date   = ""
)

const unknown = "unknown"

var fromBuildInfo = sync.OnceFunc(func() {
	if commit != "" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) > 7 {
				commit = s.Value[:7]
			} else {
				commit = s.Value
			}
		case "vcs.time":
			if date == "" {
				date = s.Value
			}
		}
	}
})

// String returns the tag, else the short commit, else "dev".
func String() string {
	fromBuildInfo()
	switch {
	case tag != "":
		return tag
	case commit != "":
		return commit
	default:
		return "dev"
	}
}

// Full returns "tag (commit) built date" with whatever parts are known.
func Full() string {
	fromBuildInfo()
	switch {
	case tag != "":
		return tag + " (" + Commit() + ") built " + Date()
	case commit != "":
		return commit + " built " + Date()
	default:
		return "dev"
	}
}

// Tag returns the release tag, or "".
func Tag() string { return tag }

// Commit returns the short commit SHA, or "unknown".
func Commit() string {
	fromBuildInfo()
	if commit == "" {
		return unknown
	}
	return commit
}

// Date returns the build date, or "unknown".
func Date() string {
	fromBuildInfo()
	if date == "" {
		return unknown
	}
	return date
}
