// Package logging provides the structured logger each process role
// constructs once and then carries through its own call sites: the
// supervisor, the detector and every device server each hold a *Logger
// scoped with their role, and a device server narrows it further per
// device with WithSerial, so a log line's origin is part of the value
// doing the logging rather than a field bolted on at the call site.
package logging

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// Logger is a logrus entry pre-populated with the fields its owner was
// constructed with. Every With* call returns a new Logger scoped with one
// more field; the receiver is never mutated, so handing a Logger to a
// helper can't leak that helper's fields back into the caller's.
type Logger struct {
	entry *log.Entry
}

// New returns a Logger scoped to role, the value every log line it (or
// anything derived from it) ever emits will carry.
func New(role string) *Logger {
	return &Logger{entry: log.WithField("role", role)}
}

// WithSerial narrows l to one device, for the device-server role where
// almost every subsequent line is naturally scoped to a single serial.
func (l *Logger) WithSerial(serial string) *Logger {
	return &Logger{entry: l.entry.WithField("serial", serial)}
}

// WithField returns l narrowed with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError returns l narrowed with an "error" field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

// SetLevel sets the process-wide logrus level from a name such as "debug"
// or "warn"; every Logger shares the one underlying logrus standard
// logger, so this affects all of them regardless of which role or device
// constructed them.
func SetLevel(levelName string) error {
	level, err := parseLevel(levelName)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

func parseLevel(levelName string) (log.Level, error) {
	switch strings.ToLower(levelName) {
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", levelName)
	}
}
