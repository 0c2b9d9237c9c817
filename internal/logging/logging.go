// Package logging adapts logrus to the service logger interface.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry. Alternating key/value args become fields.
type Logger struct {
	*logrus.Entry
}

// New creates a JSON logger writing to out at the given level. Unknown levels
// fall back to info.
func New(out io.Writer, level string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(out)
	l.SetLevel(ParseLevel(level))
	return &Logger{Entry: logrus.NewEntry(l)}
}

// ParseLevel maps a config level to logrus.
func ParseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func fields(args []any) logrus.Fields {
	if len(args) == 0 {
		return nil
	}
	f := make(logrus.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 == len(args) {
			f["!BADKEY"] = key
			break
		}
		f[key] = args[i+1]
	}
	return f
}

// With returns a logger carrying the given key/value pairs on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields(args))}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.Entry.WithFields(fields(args)).Debug(msg) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.Entry.WithFields(fields(args)).Info(msg) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.Entry.WithFields(fields(args)).Warn(msg) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.Entry.WithFields(fields(args)).Error(msg) }
