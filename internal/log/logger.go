// Package log is a small leveled logger with key/value fields, written as
// text lines or JSON objects.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is a structured logger. Args are alternating key/value pairs; an
// odd leading arg is printed bare.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a logger that adds the given key/value pairs to every
	// entry. Level and output changes are shared with the parent.
	With(args ...interface{}) Logger
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // defaults to os.Stderr
	Colors     bool
}

// sink is the state shared by a logger and everything derived with With.
type sink struct {
	mu         sync.Mutex
	level      Level
	jsonOutput bool
	out        io.Writer
	colors     bool
	now        func() time.Time
}

// DefaultLogger is the default implementation of Logger
type DefaultLogger struct {
	sink  *sink
	bound []interface{}
}

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	s := &sink{
		level:      cfg.Level,
		jsonOutput: cfg.JSONOutput,
		out:        cfg.Output,
		colors:     cfg.Colors,
		now:        time.Now,
	}
	if s.out == nil {
		s.out = os.Stderr
	}
	return &DefaultLogger{sink: s}
}

// With implements Logger.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	if len(args)%2 != 0 {
		args = args[1:]
	}
	bound := make([]interface{}, 0, len(l.bound)+len(args))
	bound = append(bound, l.bound...)
	return &DefaultLogger{sink: l.sink, bound: append(bound, args...)}
}

// pairs splits args into a bare leading value (if the count is odd) and
// key/value pairs with non-string keys dropped.
func pairs(args []interface{}) (bare interface{}, kv [][2]interface{}) {
	if len(args)%2 != 0 {
		bare, args = args[0], args[1:]
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); ok {
			kv = append(kv, [2]interface{}{args[i], args[i+1]})
		}
	}
	return bare, kv
}

func (l *DefaultLogger) text(msg string, args []interface{}) string {
	bare, kv := pairs(args)
	_, bound := pairs(l.bound)

	var sb strings.Builder
	sb.WriteString(msg)
	if bare != nil {
		fmt.Fprintf(&sb, " %v", bare)
	}
	for _, p := range append(bound, kv...) {
		fmt.Fprintf(&sb, " %s=%v", p[0], p[1])
	}
	return sb.String()
}

func (l *DefaultLogger) entry(level Level, msg, timestamp string, args []interface{}) map[string]interface{} {
	_, bound := pairs(l.bound)
	_, kv := pairs(args)
	out := make(map[string]interface{}, len(bound)+len(kv)+3)
	for _, p := range append(bound, kv...) {
		v := p[1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[p[0].(string)] = v
	}
	out["timestamp"] = timestamp
	out["level"] = level.String()
	out["message"] = msg
	return out
}

// color returns the ANSI color code for the given level
func color(level Level) string {
	switch level {
	case DebugLevel:
		return "\033[36m" // Cyan
	case InfoLevel:
		return "\033[32m" // Green
	case WarnLevel:
		return "\033[33m" // Yellow
	case ErrorLevel:
		return "\033[31m" // Red
	default:
		return ""
	}
}

func (l *DefaultLogger) log(level Level, msg string, args ...interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	timestamp := s.now().Format("2006-01-02 15:04:05")

	if s.jsonOutput {
		data, err := json.Marshal(l.entry(level, msg, timestamp, args))
		if err != nil {
			data, _ = json.Marshal(map[string]string{"level": level.String(), "message": msg, "log_error": err.Error()})
		}
		fmt.Fprintln(s.out, string(data))
		return
	}

	line := l.text(msg, args)
	if s.colors {
		line = color(level) + line + "\033[0m"
	}
	fmt.Fprintf(s.out, "[%s] %s: %s\n", timestamp, level.String(), line)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(DebugLevel, msg, args...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(InfoLevel, msg, args...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(WarnLevel, msg, args...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(ErrorLevel, msg, args...)
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.jsonOutput = enabled
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (n nopLogger) With(...interface{}) Logger { return n }
func (nopLogger) SetLevel(Level)               {}
func (nopLogger) SetJSONOutput(bool)           {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}
