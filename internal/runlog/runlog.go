// Package runlog records every status event of a mailer run as a
// timestamped line in an append-only file, mirrored to a console stream.
package runlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// TimestampLayout is the local-time prefix of every log line.
const TimestampLayout = "2006-01-02 15:04:05"

const rule = "--------------------------------------------------"

// Totals is the end-of-run tally printed by Summary.
type Totals struct {
	Total      int
	Sent       int
	Failed     int
	Invalid    int
	Duplicates int
}

// Logger writes "<timestamp> | <message>" lines in call order. Each line
// goes to the console first and then to the persistent destination; no
// line is buffered past the call that produced it.
type Logger struct {
	dest    io.WriteCloser
	path    string
	console io.Writer
	now     func() time.Time
	closed  bool
	entries int
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// Open opens path in append mode (creating it when needed) and returns a
// Logger mirroring to console. The caller must Close it exactly once the
// run has finished, on every exit path.
func Open(path string, console io.Writer, opts ...Option) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, path, console, opts...), nil
}

// OpenOrConsole is Open that degrades to console-only logging: when path
// cannot be opened a warning is printed and entries are not persisted.
func OpenOrConsole(path string, console io.Writer, opts ...Option) *Logger {
	l, err := Open(path, console, opts...)
	if err == nil {
		return l
	}
	if console == nil {
		console = io.Discard
	}
	fmt.Fprintf(console, "Warning: Could not setup logging: %v\n", err)
	return New(nopCloser{io.Discard}, path, console, opts...)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// New wraps an already opened destination. path is only used for display.
func New(dest io.WriteCloser, path string, console io.Writer, opts ...Option) *Logger {
	if console == nil {
		console = io.Discard
	}
	l := &Logger{
		dest:    dest,
		path:    path,
		console: console,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the persistent log location.
func (l *Logger) Path() string {
	return l.path
}

// Entries returns the number of lines logged so far.
func (l *Logger) Entries() int {
	return l.entries
}

// Log records one message.
func (l *Logger) Log(message string) {
	line := l.now().Format(TimestampLayout) + " | " + message
	l.entries++

	fmt.Fprintln(l.console, line)

	if l.closed {
		fmt.Fprintf(l.console, "Warning: log file already closed, entry not persisted\n")
		return
	}
	if _, err := io.WriteString(l.dest, line+"\n"); err != nil {
		fmt.Fprintf(l.console, "Warning: could not write to log file: %v\n", err)
	}
}

// Logf formats and records one message.
func (l *Logger) Logf(format string, args ...any) {
	l.Log(fmt.Sprintf(format, args...))
}

// Info records an informational entry.
func (l *Logger) Info(format string, args ...any) {
	l.Log("INFO | " + fmt.Sprintf(format, args...))
}

// Error records an error entry.
func (l *Logger) Error(format string, args ...any) {
	l.Log("ERROR | " + fmt.Sprintf(format, args...))
}

// Status records the classification of one address, with an optional
// reason.
func (l *Logger) Status(addr, status, reason string) {
	parts := []string{addr, status}
	if reason != "" {
		parts = append(parts, reason)
	}
	l.Log(strings.Join(parts, " | "))
}

// Summary logs the completion marker and the five counters, then prints
// the console summary block including the log location.
func (l *Logger) Summary(t Totals) {
	l.Info("=== Email Sending Process Completed ===")
	l.Info("SUMMARY:")
	l.Info("Total emails processed: %d", t.Total)
	l.Info("Successfully sent: %d", t.Sent)
	l.Info("Failed sends: %d", t.Failed)
	l.Info("Invalid emails: %d", t.Invalid)
	l.Info("Duplicate emails: %d", t.Duplicates)

	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	b.WriteString("EMAIL SENDING SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total emails processed: %d\n", t.Total)
	fmt.Fprintf(&b, "Successfully sent: %d\n", t.Sent)
	fmt.Fprintf(&b, "Failed sends: %d\n", t.Failed)
	fmt.Fprintf(&b, "Invalid emails: %d\n", t.Invalid)
	fmt.Fprintf(&b, "Duplicate emails: %d\n", t.Duplicates)
	fmt.Fprintf(&b, "Log file: %s\n", l.path)
	b.WriteString(rule + "\n")
	fmt.Fprint(l.console, b.String())
}

// Close releases the destination. Only the first call closes it.
func (l *Logger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.dest.Close()
}
