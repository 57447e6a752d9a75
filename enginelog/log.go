// Package enginelog wraps logrus the way the teacher's fs package wraps
// its logging: every call site tags the "subject" under discussion (an
// image path, a file path, a backend name) rather than writing free
// text, so log lines stay greppable across a large ingest.
package enginelog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level logrus instance. The CLI points its level
// at -v/-q; tests may lower it to suppress noise.
var Logger = logrus.StandardLogger()

func subjectField(subject any) logrus.Fields {
	if subject == nil {
		return logrus.Fields{}
	}
	return logrus.Fields{"subject": fmt.Sprint(subject)}
}

// Debugf logs per-file trace detail, off by default.
func Debugf(subject any, format string, args ...any) {
	Logger.WithFields(subjectField(subject)).Debugf(format, args...)
}

// Infof logs per-volume/per-filesystem milestones.
func Infof(subject any, format string, args ...any) {
	Logger.WithFields(subjectField(subject)).Infof(format, args...)
}

// Logf logs notable but non-fatal conditions (rclone's "Logf" level:
// above Info, below Error).
func Logf(subject any, format string, args ...any) {
	Logger.WithFields(subjectField(subject)).Warnf(format, args...)
}

// Errorf logs a registered error.
func Errorf(subject any, format string, args ...any) {
	Logger.WithFields(subjectField(subject)).Errorf(format, args...)
}

// SetVerbosity maps a repeated -v count (and -q) to a logrus level,
// following rclone's -v/-q CLI convention.
func SetVerbosity(verboseCount int, quiet bool) {
	switch {
	case quiet:
		Logger.SetLevel(logrus.ErrorLevel)
	case verboseCount <= 0:
		Logger.SetLevel(logrus.InfoLevel)
	case verboseCount == 1:
		Logger.SetLevel(logrus.DebugLevel)
	default:
		Logger.SetLevel(logrus.TraceLevel)
	}
}
