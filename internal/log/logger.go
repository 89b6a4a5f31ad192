// SPDX-License-Identifier: MIT
/*
Package log is a small leveled logger over the standard library logger.

The level is global and stored atomically so any goroutine may change it.
Components take a named Logger from New, which prefixes every line with
the component name:

	var logger = log.New("usbprio")
	logger.Infof("state %s -> %s", prev, next)

Nothing on the capture path logs. It raises flags that a housekeeping
goroutine drains and logs from there.
*/
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	currentLevel atomic.Uint32
	output       = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
	exit         = os.Exit
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all loggers. Tests point it at a buffer.
func SetOutput(w io.Writer) {
	output.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Logger writes lines tagged with a component name.
type Logger struct {
	prefix string
}

// New returns a Logger for the named component.
func New(component string) *Logger {
	if component == "" {
		return &Logger{}
	}
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) emit(level LogLevel, msg string) {
	if level == LevelFatal {
		output.Printf("[%s] %s%s", level, l.prefix, msg)
		exit(1)
		return
	}
	if !shouldLog(level) {
		return
	}
	// Pad the shorter level names so messages line up.
	pad := ""
	if level == LevelInfo || level == LevelWarn {
		pad = " "
	}
	output.Printf("[%s]%s %s%s", level, pad, l.prefix, msg)
}

func (l *Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		l.emit(LevelDebug, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		l.emit(LevelInfo, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		l.emit(LevelWarn, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		l.emit(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf always logs, then exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	l.emit(LevelFatal, fmt.Sprintf(format, v...))
}

var root = New("")

// Debugf logs through the root logger.
func Debugf(format string, v ...any) { root.Debugf(format, v...) }

// Infof logs through the root logger.
func Infof(format string, v ...any) { root.Infof(format, v...) }

// Warnf logs through the root logger.
func Warnf(format string, v ...any) { root.Warnf(format, v...) }

// Errorf logs through the root logger.
func Errorf(format string, v ...any) { root.Errorf(format, v...) }

// Fatalf logs through the root logger and exits.
func Fatalf(format string, v ...any) { root.Fatalf(format, v...) }

// Info logs an info message if the level is appropriate.
func Info(v ...any) { root.Infof("%s", fmt.Sprint(v...)) }

// Error logs an error message if the level is appropriate.
func Error(v ...any) { root.Errorf("%s", fmt.Sprint(v...)) }
