package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// New builds the broker's stderr-style logger. Verbose switches debug output
// on; derivation aborts are only ever logged at debug level.
func New(out io.Writer, verbose bool) *log.Logger {
	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}
