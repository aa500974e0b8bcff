// Package version exposes the packager's build metadata.
//
// Version, Commit and BuildTime are injected through Go ldflags and
// default to placeholder values for local builds. Short and Full render
// the version string for the CLI and for logs; important when a bad
// package needs tracing back to the tool build that produced it.
package version
