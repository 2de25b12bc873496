// Package buildinfo exposes version details stamped in at link time:
//
//	go build -ldflags "-X github.com/nomis52/scenecap/buildinfo.version=v0.3.0 \
//	  -X github.com/nomis52/scenecap/buildinfo.gitCommit=$(git rev-parse --short HEAD)"
package buildinfo

import "fmt"

// Properties describes the running binary.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// UserAgent is sent with outbound requests, e.g. "scenecap/v0.3.0 (abc1234)".
func UserAgent() string {
	p := Get()
	return fmt.Sprintf("scenecap/%s (%s)", p.Version, p.GitCommit)
}
