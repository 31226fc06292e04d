package audit

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetWriter(&buf)
	logger.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	logger.Log(Entry{
		ID:             "01J0000000000000000000000",
		Principal:      "D1",
		Role:           "doctor",
		Action:         "protection.unprotect",
		TargetResource: "prot-1",
		Success:        true,
		Hash:           "abc",
	})

	output := buf.String()

	// <PRI> is authpriv(10)*8 + info(6)
	if !strings.HasPrefix(output, "<86>1 2026-03-01T10:00:00.000Z ") {
		t.Errorf("unexpected header: %q", output)
	}
	if !strings.Contains(output, " phivault ") {
		t.Error("Expected app name 'phivault' in output")
	}
	if !strings.Contains(output, " protection.unprotect [") {
		t.Error("Expected message ID in output")
	}
	if !strings.Contains(output, `[auth@32473 principal="D1" role="doctor"]`) {
		t.Errorf("Expected sorted auth element in output: %s", output)
	}
	if !strings.HasSuffix(output, "D1 performed protection.unprotect on prot-1\n") {
		t.Errorf("unexpected message: %s", output)
	}
}

func TestEntryFailureMessage(t *testing.T) {
	e := Entry{
		Principal:      "D2",
		Action:         "protection.unprotect",
		TargetResource: "prot-1",
		Success:        false,
		Details:        map[string]string{"reason": "AccessDenied"},
	}

	if e.Severity() != SeverityWarning {
		t.Errorf("expected warning severity, got %d", e.Severity())
	}
	if e.Facility() != FacilityAuthPriv {
		t.Errorf("expected authpriv facility, got %d", e.Facility())
	}
	if got, want := e.Message(), "D2 tried to perform protection.unprotect on prot-1: AccessDenied"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	if e.StructuredData()[SDIDAction]["result"] != "failure" {
		t.Error("expected failure result in structured data")
	}
	if e.StructuredData()[SDIDSubject]["reason"] != "AccessDenied" {
		t.Error("expected details in subject element")
	}
}

func TestEscapeSDValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, `"plain"`},
		{`a"b`, `"a\"b"`},
		{`a]b`, `"a\]b"`},
		{`a\b`, `"a\\b"`},
	}
	for _, tt := range tests {
		if got := escapeSDValue(tt.in); got != tt.want {
			t.Errorf("escapeSDValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
