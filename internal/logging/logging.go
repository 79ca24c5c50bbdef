// Package logging implements the dedicated alarm-event log file: an
// append-only, human-readable record of every send status, separate from
// the standard library's log.Printf calls used throughout the rest of the
// tree for general operational messages.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/timez"
)

// nowFunc is a seam for deterministic tests; production code always calls
// time.Now.
var nowFunc = time.Now

// Logger is an explicit handle onto one alarm-event log file; never a
// package-global singleton, so tests and multiple deployments can each hold
// their own independent instance.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	zone *timez.Zone
}

// Open opens path for append, creating it with mode 0664 if absent.
// Appending to an existing file preserves its mode.
func Open(path string, zone *timez.Zone) (*Logger, error) {
	if zone == nil {
		zone = timez.Default
	}
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return nil, fmt.Errorf("opening alarm log file: %w", err)
	}
	if os.IsNotExist(statErr) {
		// OpenFile's mode is filtered by the process umask; set it explicitly.
		if err := f.Chmod(0664); err != nil {
			f.Close()
			return nil, fmt.Errorf("setting alarm log file mode: %w", err)
		}
	}
	return &Logger{file: f, w: bufio.NewWriter(f), zone: zone}, nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

func (l *Logger) writeLine(local string, isError bool, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := ""
	if isError {
		prefix = "[FEHLER: ]"
	}
	fmt.Fprintf(l.w, "%s\t%s%s\n", local, prefix, message)
	l.w.Flush()
}

// Errorf writes a line carrying the [FEHLER: ] prefix.
func (l *Logger) Errorf(format string, args ...any) {
	l.writeLine(l.zone.FormatLocal(nowFunc()), true, fmt.Sprintf(format, args...))
}

// Infof writes a plain line.
func (l *Logger) Infof(format string, args ...any) {
	l.writeLine(l.zone.FormatLocal(nowFunc()), false, fmt.Sprintf(format, args...))
}

// LogStatus writes one line for a terminal send-status record: gateway
// kind, code digits, a target summary, the attempt count, and the status
// code. The line is stamped with the local time at which LogStatus runs;
// SendStatusMessage carries no event time, so the alarm's own time does not
// appear in the line.
func (l *Logger) LogStatus(code string, status gateway.SendStatusMessage) {
	isErr := status.Status.Code != gateway.Success
	summary := targetSummary(status.Payload)
	msg := fmt.Sprintf("%s %s -> %s (attempt %d): %s",
		kindLabel(status.Payload), code, summary, status.AttemptCount, status.Status.Code)
	l.writeLine(l.zone.FormatLocal(nowFunc()), isErr, msg)
}

func kindLabel(p payload.Payload) string {
	if p == nil {
		return "unknown"
	}
	return string(p.GatewayKind())
}

func targetSummary(p payload.Payload) string {
	switch v := p.(type) {
	case *payload.Email:
		return fmt.Sprintf("%d recipient(s)", len(v.Recipients))
	case *payload.Rest:
		switch {
		case v.Target.AllUsers:
			return "all users"
		case len(v.Target.Individuals) > 0:
			return fmt.Sprintf("%d individual(s)", len(v.Target.Individuals))
		default:
			return fmt.Sprintf("%d label(s)/%d unit(s)/%d scenario(s)", len(v.Target.Labels), len(v.Target.Units), len(v.Target.Scenarios))
		}
	case *payload.External:
		return v.Command
	case *payload.Infoalarm:
		return targetSummary(v.Inner)
	default:
		return "-"
	}
}

// Writer exposes the underlying io.Writer for callers that want to fold the
// alarm log into a broader multi-writer (tests, for instance).
func (l *Logger) Writer() io.Writer { return l.w }
