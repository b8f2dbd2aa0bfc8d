package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/riftlands/engine/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("Open with empty path must fail")
	}
}

func TestAppendAndListTelemetryEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []storage.TelemetryEvent{
		{Severity: "INFO", Component: "registrar", Message: "synced", Timestamp: base},
		{Severity: "WARN", Component: "narration", Message: "ai_fallback",
			Attrs: map[string]string{"scene": "scene-1"}, Timestamp: base.Add(time.Minute)},
		{Severity: "ERROR", Component: "sheet_index", Message: "rebuild_failed",
			Timestamp: base.Add(2 * time.Minute)},
	}
	for _, event := range events {
		if err := store.AppendTelemetryEvent(ctx, event); err != nil {
			t.Fatalf("AppendTelemetryEvent(%s): %v", event.Message, err)
		}
	}

	listed, err := store.ListTelemetryEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListTelemetryEvents: %v", err)
	}
	if len(listed) != len(events) {
		t.Fatalf("listed %d events, want %d", len(listed), len(events))
	}
	if listed[0].Message != "rebuild_failed" {
		t.Errorf("newest event = %q, want rebuild_failed", listed[0].Message)
	}
	if listed[1].Attrs["scene"] != "scene-1" {
		t.Errorf("attrs = %v, want scene attr preserved", listed[1].Attrs)
	}
	if !listed[2].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", listed[2].Timestamp, base)
	}
}

func TestListTelemetryEventsHonorsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := storage.TelemetryEvent{
			Severity:  "INFO",
			Component: "scene",
			Message:   "resolved",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendTelemetryEvent(ctx, event); err != nil {
			t.Fatalf("AppendTelemetryEvent: %v", err)
		}
	}

	listed, err := store.ListTelemetryEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListTelemetryEvents: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("listed %d events, want 2", len(listed))
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	event := storage.TelemetryEvent{Severity: "INFO", Component: "registrar", Message: "synced"}
	if err := first.AppendTelemetryEvent(ctx, event); err != nil {
		t.Fatalf("AppendTelemetryEvent: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	listed, err := second.ListTelemetryEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListTelemetryEvents: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d events after reopen, want 1", len(listed))
	}
}
