package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/payload"
)

func TestOpen_CreatesFileWithMode0664(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarm.log")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0664 {
		t.Fatalf("expected mode 0664, got %v", info.Mode().Perm())
	}
}

func TestErrorf_WritesFehlerPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarm.log")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.Errorf("connection refused")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "[FEHLER: ]connection refused") {
		t.Fatalf("expected FEHLER-prefixed line, got %q", string(data))
	}
}

func TestInfof_HasNoFehlerPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarm.log")
	l, _ := Open(path, nil)
	l.Infof("started")
	l.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "FEHLER") {
		t.Fatalf("plain info line must not carry the error prefix, got %q", string(data))
	}
}

func TestLogStatus_EmbedsCodeAndSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarm.log")
	l, _ := Open(path, nil)
	email := payload.NewEmail("Org", "Role", []payload.Recipient{{DisplayName: "Bob Foo", Address: "bob@x"}}, "Einsatz", true)
	l.LogStatus("23799", gateway.SendStatusMessage{
		Status:       gateway.Status{Code: gateway.Success},
		AttemptCount: 1,
		Payload:      email,
	})
	l.Close()

	data, _ := os.ReadFile(path)
	line := string(data)
	if !strings.Contains(line, "23799") {
		t.Fatalf("expected the code in the log line, got %q", line)
	}
	if !strings.Contains(line, "1 recipient(s)") {
		t.Fatalf("expected a target summary in the log line, got %q", line)
	}
	if strings.Contains(line, "FEHLER") {
		t.Fatalf("a Success status must not carry the FEHLER prefix, got %q", line)
	}
}

func TestLogStatus_TimeoutFailureCarriesFehlerPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarm.log")
	l, _ := Open(path, nil)
	l.LogStatus("23799", gateway.SendStatusMessage{
		Status:  gateway.Status{Code: gateway.TimeoutFailure},
		Payload: payload.NewExternal("/bin/true", ""),
	})
	l.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "FEHLER") {
		t.Fatalf("a failed status must carry the FEHLER prefix, got %q", string(data))
	}
}

func TestAppendPreservesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarm.log")
	l1, _ := Open(path, nil)
	l1.Infof("first")
	l1.Close()

	l2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	l2.Infof("second")
	l2.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected both lines preserved across reopen, got %q", string(data))
	}
}
