// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package audit records security-relevant ceremony outcomes in an
// append-only, server-side trail.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-devicetrust/pkg/correlation"
	"github.com/jeremyhahn/go-devicetrust/pkg/validation"
)

// EventType names an auditable outcome.
type EventType string

const (
	RegistrationVerified   EventType = "registration.verified"
	RegistrationFailed     EventType = "registration.failed"
	AuthenticationVerified EventType = "authentication.verified"
	AuthenticationFailed   EventType = "authentication.failed"
	CounterRegression      EventType = "authentication.counter_regression"
	RecoveryGenerated      EventType = "recovery.generated"
	RecoveryVerified       EventType = "recovery.verified"
	RecoveryFailed         EventType = "recovery.failed"
	RecoveryInvalidated    EventType = "recovery.invalidated"
	AuthenticatorDeleted   EventType = "authenticator.deleted"
	AuthenticatorRenamed   EventType = "authenticator.renamed"
)

// Security reports whether the event indicates a possible compromise and
// should be surfaced to alerting.
func (t EventType) Security() bool {
	switch t {
	case CounterRegression, AuthenticationFailed, RegistrationFailed, RecoveryFailed:
		return true
	}
	return false
}

// Event is a single audit record.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id,omitempty"`
	CredentialID  string    `json:"credential_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent creates an event stamped with a fresh ID, the correlation ID
// from ctx and the current time.
func NewEvent(ctx context.Context, typ EventType, userID string) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		UserID:        userID,
		CorrelationID: correlation.GetCorrelationID(ctx),
		OccurredAt:    time.Now().UTC(),
	}
}

// Sink persists or forwards audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Recorder emits events to a sink. Sink failures are logged, not returned.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil sink records nothing.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Emit records e.
func (r *Recorder) Emit(ctx context.Context, e Event) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, e); err != nil {
		r.logger.ErrorContext(ctx, "audit record failed",
			"event", string(e.Type), "user_id", e.UserID, "error", err)
	}
}

// LogSink writes events to a logger. Security events are logged at warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Type.Security() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, string(e.Type),
		"audit_id", e.ID,
		"user_id", e.UserID,
		"credential_id", e.CredentialID,
		"detail", validation.SanitizeForLog(e.Detail))
	return nil
}

// MultiSink records to every sink and joins their errors.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink.
func (s *MemorySink) Record(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// OfType returns the recorded events of type t.
func (s *MemorySink) OfType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
