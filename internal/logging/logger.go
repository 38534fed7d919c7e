package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger provides leveled logging with redaction support.
// Every component of the shield subsystem logs through an injected
// *Logger; there is no package-level default instance.
type Logger struct {
	component string
	debug     bool
	out       io.Writer
}

// New creates a logger for the named component.
func New(component string, debug bool) *Logger {
	return &Logger{
		component: component,
		debug:     debug,
		out:       os.Stderr,
	}
}

// WithOutput returns a copy of the logger writing to w. Used in tests.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return &Logger{component: l.component, debug: l.debug, out: w}
}

// Named returns a child logger for a sub-component.
func (l *Logger) Named(sub string) *Logger {
	return &Logger{component: l.component + "." + sub, debug: l.debug, out: l.out}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("INFO", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("WARN", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("ERROR", format, args...)
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("DEBUG", format, args...)
}

func (l *Logger) emit(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.out, "%s %-5s [%s] %s\n", time.Now().UTC().Format(time.RFC3339), level, l.component, msg)
}

// Secret represents a value that must be redacted in logs.
type Secret string

// String implements the Stringer interface, always returning a redacted value.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED].
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
