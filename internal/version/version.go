// Package version holds the build version stamped into backups and the
// ops API. Overridden at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.3"
package version

// Version identifies the running build.
var Version = "dev"
