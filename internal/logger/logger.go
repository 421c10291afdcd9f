package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance wrapper
var Log *Logger

type Logger struct {
	z zerolog.Logger
}

func init() {
	Log = newLogger(os.Stderr, "console")
}

// Setup configures the global logger to write to stderr
func Setup(level string, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter configures the global logger with an explicit destination.
func SetupWriter(w io.Writer, level string, format string) {
	zerolog.SetGlobalLevel(parseLevel(level))
	Log = newLogger(w, format)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newLogger(w io.Writer, format string) *Logger {
	if strings.ToLower(format) == "json" {
		return &Logger{z: zerolog.New(w).With().Timestamp().Logger()}
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return &Logger{z: zerolog.New(output).With().Timestamp().Logger()}
}

// With returns a child logger carrying the given key-value pairs on every event
func (l *Logger) With(args ...interface{}) *Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(args); i += 2 {
		ctx = ctx.Interface(keyOf(args[i]), args[i+1])
	}
	return &Logger{z: ctx.Logger()}
}

// Info logs at Info level with variadic key-value pairs
func (l *Logger) Info(msg string, args ...interface{}) {
	e := l.z.Info()
	addFields(e, args...)
	e.Msg(msg)
}

// Debug logs at Debug level with variadic key-value pairs
func (l *Logger) Debug(msg string, args ...interface{}) {
	e := l.z.Debug()
	addFields(e, args...)
	e.Msg(msg)
}

// Warn logs at Warn level with variadic key-value pairs
func (l *Logger) Warn(msg string, args ...interface{}) {
	e := l.z.Warn()
	addFields(e, args...)
	e.Msg(msg)
}

// Error logs at Error level with variadic key-value pairs
func (l *Logger) Error(msg string, args ...interface{}) {
	e := l.z.Error()
	addFields(e, args...)
	e.Msg(msg)
}

// addFields adds variadic key-value pairs to the event. A trailing key
// without a value is dropped.
func addFields(e *zerolog.Event, args ...interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		if err, ok := args[i+1].(error); ok {
			e.AnErr(keyOf(args[i]), err)
			continue
		}
		e.Interface(keyOf(args[i]), args[i+1])
	}
}

func keyOf(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}
