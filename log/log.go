// Package log provides the default logrus-based logger for the sequence
// engine.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("SEQUENCE_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Debug level is enabled with the
// SEQUENCE_DEBUG environment variable.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// WithRun returns an entry tagged with the run id. The entry satisfies the
// engine's Logger interface.
func WithRun(l *logrus.Logger, runID string) *logrus.Entry {
	return l.WithField("run", runID)
}
