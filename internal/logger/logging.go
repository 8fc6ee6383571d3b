// Package logger provides modifications to charmbracelet/log's default logger to be used in various files/packages.
//
// Every logger writes to stderr: when codeserve runs as an IPC server stdout
// is reserved for msgpack frames.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Output is where every logger created by this package writes.
var Output io.Writer = os.Stderr

// New creates a new default charm log with a component prefix.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(Output, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// SetDebug switches the global logger between debug and quiet mode.
func SetDebug(debug bool) {
	log.SetOutput(Output)
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
		return
	}
	log.SetLevel(log.WarnLevel)
}
