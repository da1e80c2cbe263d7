// Package log provides the gateway's process-wide logging sink.
//
// It stays deliberately small: a single io.Writer, free functions, and
// an Extras helper for the correlation fields the error taxonomy needs
// (session id, tool name, remote addr). Nothing here buffers, rotates,
// or ships logs anywhere; that's left to whatever wraps the writer.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var logWriter io.Writer = os.Stderr

// SetLogWriter sets the log output destination
func SetLogWriter(w io.Writer) {
	if w != nil {
		logWriter = w
	}
}

// Log prints a message to the log output
func Log(a ...any) {
	_, _ = fmt.Fprintln(logWriter, a...)
}

// Logf prints a formatted message to the log output
func Logf(format string, a ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	_, _ = fmt.Fprintf(logWriter, format, a...)
}

// Extras is a set of correlation fields attached to a log line: session
// id, tool name, remote address, tenant, prefix, whatever the caller
// has on hand. Order is preserved so output is stable.
type Extras []Field

// Field is a single key/value correlation field.
type Field struct {
	Key   string
	Value any
}

// F builds a Field; short name because call sites chain several.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func (e Extras) String() string {
	if len(e) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range e {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
	}
	return b.String()
}

// Warnf logs a warning-level message with correlation fields.
func Warnf(extras Extras, format string, a ...any) {
	logLeveled("WARN", extras, format, a...)
}

// Errorf logs an error-level message with correlation fields.
func Errorf(extras Extras, format string, a ...any) {
	logLeveled("ERROR", extras, format, a...)
}

func logLeveled(level string, extras Extras, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	ts := time.Now().UTC().Format(time.RFC3339)
	if len(extras) > 0 {
		_, _ = fmt.Fprintf(logWriter, "%s [%s] %s %s\n", ts, level, msg, extras)
		return
	}
	_, _ = fmt.Fprintf(logWriter, "%s [%s] %s\n", ts, level, msg)
}
