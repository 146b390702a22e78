package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not json: %v; entry=%s", err, buf.String())
	}
	return entry
}

func TestErrorIncludesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	log.Error(ctx, "boom", errors.New("kaput"))

	entry := decodeEntry(t, buf)
	if entry["request_id"] != "req-123" || entry["service"] != "test" {
		t.Fatalf("missing context fields; entry=%v", entry)
	}
	if entry["error"] != "kaput" || entry["stack"] == nil {
		t.Fatalf("expected error and stack; entry=%v", entry)
	}
	if got := RequestID(ctx); got != "req-123" {
		t.Fatalf("RequestID = %q", got)
	}
}

func TestWithFieldsDoesNotLeakIntoParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithField(context.Background(), "step", "reserve")
	child := log.WithFields(parent, map[string]any{"step": "charge", "saga_id": "s-1"})

	log.Info(child, "child")
	entry := decodeEntry(t, buf)
	if entry["step"] != "charge" || entry["saga_id"] != "s-1" {
		t.Fatalf("child fields wrong; entry=%v", entry)
	}

	buf.Reset()
	log.Info(parent, "parent")
	entry = decodeEntry(t, buf)
	if entry["step"] != "reserve" || entry["saga_id"] != nil {
		t.Fatalf("parent fields changed; entry=%v", entry)
	}
}

func TestWithSagaOmitsEmptyCharge(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	log.Info(log.WithSaga(context.Background(), "saga-1", ""), "charging")
	if strings.Contains(buf.String(), "charge_id") {
		t.Fatalf("did not expect charge_id before charge; entry=%s", buf.String())
	}

	buf.Reset()
	log.Info(log.WithSaga(context.Background(), "saga-1", "ch_123"), "charged")
	if entry := decodeEntry(t, buf); entry["charge_id"] != "ch_123" {
		t.Fatalf("expected charge_id field; entry=%v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "warn", Output: buf})
	log.Debug(context.Background(), "hidden")
	log.Info(log.WithField(context.Background(), "k", "v"), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected entries below warn to be dropped; got=%s", buf.String())
	}
	log.Warn(context.TODO(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn entry")
	}
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: "Console", Output: buf})
	log.Info(context.Background(), "hello")
	if json.Valid(buf.Bytes()) || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output; got=%s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultLevelIsInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	log.Debug(context.Background(), "noisy")
	if buf.Len() != 0 {
		t.Fatalf("debug entry written at default level: %s", buf.String())
	}
	log.Info(context.Background(), "kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("info entry missing; got=%s", buf.String())
	}
}
