//go:build trace
// +build trace

package build

// LogLevel specifies a log level of trace.
const LogLevel = "trace"
