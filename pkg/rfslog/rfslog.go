// Package rfslog is the leveled logger used throughout rfs, a thin wrapper
// over a *logrus.Logger shaped like rclone's fs.Debugf/fs.Infof/fs.Errorf
// family: printf-style helpers tagged with the originating component
// ("source") instead of carrying a separate sub-logger per package.
package rfslog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is safe for concurrent use, same as the *logrus.Logger it wraps.
type Logger struct {
	l *logrus.Logger
}

// New returns a Logger writing to out at the given level.
func New(out io.Writer, level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &Logger{l: l}
}

// SetLevel maps a --debug repeat count onto a logrus level: 0 is info, 1 is
// debug, 2 or more is trace (debug plus caller reporting).
func (log *Logger) SetLevel(debugCount int) {
	switch {
	case debugCount <= 0:
		log.l.SetLevel(logrus.InfoLevel)
		log.l.SetReportCaller(false)
	case debugCount == 1:
		log.l.SetLevel(logrus.DebugLevel)
		log.l.SetReportCaller(false)
	default:
		log.l.SetLevel(logrus.TraceLevel)
		log.l.SetReportCaller(true)
	}
}

func (log *Logger) entry(source string) *logrus.Entry {
	return log.l.WithField("source", source)
}

// Debugf logs a debug-level message tagged with source.
func (log *Logger) Debugf(source, format string, args ...interface{}) {
	log.entry(source).Debugf(format, args...)
}

// Infof logs an info-level message tagged with source.
func (log *Logger) Infof(source, format string, args ...interface{}) {
	log.entry(source).Infof(format, args...)
}

// Warnf logs a warn-level message tagged with source.
func (log *Logger) Warnf(source, format string, args ...interface{}) {
	log.entry(source).Warnf(format, args...)
}

// Errorf logs an error-level message tagged with source.
func (log *Logger) Errorf(source, format string, args ...interface{}) {
	log.entry(source).Errorf(format, args...)
}

// Fatalf logs a fatal-level message tagged with source and then exits the
// process via logrus's Fatalf (os.Exit(1) after logging).
func (log *Logger) Fatalf(source, format string, args ...interface{}) {
	log.entry(source).Fatalf(format, args...)
}
