// Package storage defines persistence contracts for operational records.
//
// Scene and sheet state live in process memory; only operator-facing
// telemetry is persisted.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// TelemetryEvent records one operational event.
type TelemetryEvent struct {
	Severity  string
	Component string
	Message   string
	Attrs     map[string]string
	Timestamp time.Time
}

// TelemetryStore persists operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
	ListTelemetryEvents(ctx context.Context, limit int) ([]TelemetryEvent, error)
}
