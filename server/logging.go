package server

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Log levels, lowest to highest.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger writes leveled log lines to injected writers. Warnings and
// errors go to stderr, everything else to stdout.
type Logger struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	level  int
	format string // "json" or "text"
}

type logLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// RequestLogEntry represents a single request log entry
type RequestLogEntry struct {
	Timestamp  string `json:"timestamp"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	Duration   string `json:"duration"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// NewLogger creates a logger writing to the given streams.
func NewLogger(stdout, stderr io.Writer, level, format string) *Logger {
	if format == "" {
		format = "text"
	}
	return &Logger{
		stdout: stdout,
		stderr: stderr,
		level:  parseLevel(level),
		format: format,
	}
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelName(level int) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.write(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.write(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.write(LevelError, format, args...) }

func (l *Logger) write(level int, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	out := l.stdout
	if level >= LevelWarn {
		out = l.stderr
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		data, err := json.Marshal(logLine{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     levelName(level),
			Message:   msg,
		})
		if err != nil {
			return
		}
		fmt.Fprintf(out, "%s\n", data)
		return
	}
	fmt.Fprintf(out, "%s [%s] %s\n", time.Now().Format(time.RFC3339), levelName(level), msg)
}

// LogRequest writes one request log entry.
func (l *Logger) LogRequest(method, path string, status int, duration time.Duration, clientIP string) {
	if l == nil || l.level > LevelInfo {
		return
	}
	entry := RequestLogEntry{
		Timestamp:  time.Now().Format(time.RFC3339),
		Method:     method,
		Path:       path,
		Status:     status,
		Duration:   duration.String(),
		DurationMs: duration.Milliseconds(),
		ClientIP:   clientIP,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintf(l.stdout, "%s\n", data)
		return
	}
	fmt.Fprintf(l.stdout, "%s %s %s %d %s\n",
		entry.Timestamp, entry.Method, entry.Path, entry.Status, entry.Duration)
}
