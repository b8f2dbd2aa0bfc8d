// Package telemetry records operational events for operator visibility.
//
// Failures the engine deliberately hides from players (AI fallback, degraded
// command registration, per-channel rebuild errors) are emitted here so they
// stay observable.
package telemetry

import (
	"context"
	"time"

	"github.com/riftlands/engine/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Well-known component values for emitted events.
const (
	ComponentSheetIndex = "sheet_index"
	ComponentNarration  = "narration"
	ComponentRegistrar  = "registrar"
	ComponentScene      = "scene"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the emitter or its
// store is nil, so callers never need to guard the call.
func (e *Emitter) Emit(ctx context.Context, severity Severity, component, message string, attrs map[string]string) error {
	if e == nil || e.store == nil {
		return nil
	}
	clock := e.clock
	if clock == nil {
		clock = time.Now
	}
	return e.store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		Severity:  string(severity),
		Component: component,
		Message:   message,
		Attrs:     attrs,
		Timestamp: clock().UTC(),
	})
}
