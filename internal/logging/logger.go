// Package logging defines the logger contract used across the engine:
// level-named methods plus a debug toggle, backed by a logrus.Logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Logger is the contract every component in the engine logs through.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool
	// With returns a derived logger that tags every entry with the given
	// field, used to scope log lines to a peer or component.
	With(key string, value interface{}) Logger
}

// logrusLogger is the default Logger implementation.
type logrusLogger struct {
	entry *logrus.Entry
	base  *logrus.Logger
}

// New builds the default production logger. Level output is colorized
// via fatih/color through a colorable writer so ANSI codes render
// correctly on every platform, including when out is redirected.
func New(out io.Writer, level logrus.Level) Logger {
	if out == nil {
		out = colorable.NewColorableStdout()
	}
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(level)
	base.SetFormatter(&bracketFormatter{})
	return &logrusLogger{entry: logrus.NewEntry(base), base: base}
}

// NewDefault builds a logger that writes to stderr with debug
// disabled by default.
func NewDefault() Logger {
	return New(colorable.NewColorableStderr(), logrus.InfoLevel)
}

func (l *logrusLogger) With(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value), base: l.base}
}

func (l *logrusLogger) Info(v ...interface{})                 { l.entry.Info(v...) }
func (l *logrusLogger) Infof(format string, v ...interface{}) { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(v ...interface{})                 { l.entry.Warn(v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{}) { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(v ...interface{})                { l.entry.Error(v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }

func (l *logrusLogger) Debug(v ...interface{}) {
	l.entry.Debug(v...)
}

func (l *logrusLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *logrusLogger) Fatal(v ...interface{}) {
	l.entry.Error(v...)
	os.Exit(1)
}

func (l *logrusLogger) Fatalf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
	os.Exit(1)
}

// ToggleDebug flips the base logger between info and debug level.
func (l *logrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.base.SetLevel(logrus.DebugLevel)
	} else {
		l.base.SetLevel(logrus.InfoLevel)
	}
	return value
}

// levelColor picks the palette a bracketed level prefix renders in.
func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel:
		return color.New(color.FgRed)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.DebugLevel:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

// bracketFormatter renders each entry as a timestamp followed by a
// colorized "[LEVEL]: message" prefix, then any structured fields
// sorted by key. The bracketed level shape mirrors the line format a
// bare stdlib log.Logger would produce, colorized via levelColor.
type bracketFormatter struct{}

func (bracketFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(e.Time.Format(time.RFC3339))
	buf.WriteByte(' ')
	levelColor(e.Level).Fprintf(&buf, "[%s]", strings.ToUpper(e.Level.String()))
	fmt.Fprintf(&buf, ": %s", e.Message)
	for _, k := range sortedKeys(e.Data) {
		fmt.Fprintf(&buf, " %s=%v", k, e.Data[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func sortedKeys(fields logrus.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
