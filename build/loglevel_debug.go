//go:build debug && !trace
// +build debug,!trace

package build

// LogLevel specifies a log level of debug.
const LogLevel = "debug"
