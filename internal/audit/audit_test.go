package audit

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "security.log")
	l, err := New(path, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndQuery(t *testing.T) {
	l := newTestLog(t)

	l.Record(KindAuthSuccess, string(SeverityInfo), "profile-1", "authenticated", nil)
	l.Record(KindAuthFailure, string(SeverityWarning), "profile-1", "wrong password", nil)
	l.Record(KindAuthSuccess, string(SeverityInfo), "profile-2", "authenticated", nil)

	events, err := l.Query(Filter{ProfileID: "profile-1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for profile-1, want 2", len(events))
	}
}

func TestQueryByKind(t *testing.T) {
	l := newTestLog(t)
	l.Record(KindAuthSuccess, string(SeverityInfo), "p1", "ok", nil)
	l.Record(KindAuthFailure, string(SeverityWarning), "p1", "no", nil)

	events, err := l.Query(Filter{Kind: KindAuthFailure})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindAuthFailure {
		t.Errorf("got %+v; want exactly one AuthFailure event", events)
	}
}

func TestCriticalCallbackFiresSynchronously(t *testing.T) {
	l := newTestLog(t)

	var received Event
	fired := false
	l.RegisterCriticalCallback(func(ev Event) {
		fired = true
		received = ev
	})

	l.Record(KindVaultCorruptionDetected, string(SeverityCritical), "p1", "checksum mismatch", nil)

	if !fired {
		t.Fatal("critical callback should fire synchronously")
	}
	if received.Kind != KindVaultCorruptionDetected {
		t.Errorf("callback received kind %q, want %q", received.Kind, KindVaultCorruptionDetected)
	}
}

func TestInfoEventDoesNotTriggerCallback(t *testing.T) {
	l := newTestLog(t)

	fired := false
	l.RegisterCriticalCallback(func(ev Event) { fired = true })

	l.Record(KindInfoEvent, string(SeverityInfo), "p1", "routine event", nil)

	if fired {
		t.Error("an Info event must never reach the critical callback")
	}
}

func TestSanitizationRedactsSensitiveFields(t *testing.T) {
	l := newTestLog(t)
	l.Record(KindConfigChange, string(SeverityInfo), "p1",
		"path /home/alice/secret-folder changed; password=hunter2xyz key=deadbeefdeadbeefdeadbeef12345678",
		nil)

	events, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	desc := events[0].Description
	if bytes.Contains([]byte(desc), []byte("/home/alice")) {
		t.Errorf("description still contains home path: %q", desc)
	}
	if bytes.Contains([]byte(desc), []byte("hunter2xyz")) {
		t.Errorf("description still contains password value: %q", desc)
	}
	if bytes.Contains([]byte(desc), []byte("deadbeefdeadbeefdeadbeef12345678")) {
		t.Errorf("description still contains raw hex run: %q", desc)
	}
}

func TestRetentionSweepPurgesOldEvents(t *testing.T) {
	l := newTestLog(t)

	fixedNow := time.Now()
	l.now = func() time.Time { return fixedNow.Add(-10 * 24 * time.Hour) }
	l.Record(KindInfoEvent, string(SeverityInfo), "p1", "old event", nil)

	l.now = func() time.Time { return fixedNow }
	l.Record(KindInfoEvent, string(SeverityInfo), "p1", "recent event", nil)

	l.sweep()

	events, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after sweep, want 1 (only the recent one)", len(events))
	}
	if events[0].Description != "recent event" {
		t.Errorf("surviving event = %q, want %q", events[0].Description, "recent event")
	}
}

func TestStartRetentionSweepStopsOnCancel(t *testing.T) {
	l := newTestLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	l.StartRetentionSweep(ctx, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond) // let the goroutine observe cancellation
}
