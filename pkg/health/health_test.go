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

package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestLive(t *testing.T) {
	if got := NewChecker().Live(context.Background()).Status; got != StatusHealthy {
		t.Errorf("Live() status = %s, want healthy", got)
	}
}

func TestReady_NoChecks(t *testing.T) {
	results := NewChecker().Ready(context.Background())
	if len(results) != 1 || results[0].Status != StatusHealthy {
		t.Fatalf("Ready() = %+v, want one healthy default result", results)
	}
}

func TestReady_Pingers(t *testing.T) {
	c := NewChecker()
	c.RegisterPinger("storage", pingFunc(func(ctx context.Context) error { return nil }))
	c.RegisterPinger("audit", pingFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	c.RegisterCheck("nil", nil)

	results := c.Ready(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "audit" || results[1].Name != "storage" {
		t.Errorf("results not sorted by name: %+v", results)
	}
	if results[0].Status != StatusUnhealthy || results[0].Error != "connection refused" {
		t.Errorf("audit result = %+v", results[0])
	}
	if got := AggregateStatus(results); got != StatusUnhealthy {
		t.Errorf("AggregateStatus() = %s, want unhealthy", got)
	}
}

func TestReady_Timeout(t *testing.T) {
	c := NewChecker()
	c.timeout = 10 * time.Millisecond
	c.RegisterPinger("slow", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results := c.Ready(context.Background())
	if results[0].Status != StatusUnhealthy {
		t.Errorf("slow check status = %s, want unhealthy", results[0].Status)
	}
}

func TestReady_Stopping(t *testing.T) {
	c := NewChecker()
	c.RegisterPinger("storage", pingFunc(func(ctx context.Context) error { return nil }))
	c.MarkStopping()

	if got := AggregateStatus(c.Ready(context.Background())); got != StatusUnhealthy {
		t.Errorf("AggregateStatus() while stopping = %s, want unhealthy", got)
	}
}

func TestStartup(t *testing.T) {
	c := NewChecker()
	if got := c.Startup(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("Startup() before MarkStarted = %s, want unhealthy", got)
	}
	c.MarkStarted()
	if got := c.Startup(context.Background()).Status; got != StatusHealthy {
		t.Errorf("Startup() after MarkStarted = %s, want healthy", got)
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.statuses))
			for i, s := range tt.statuses {
				results[i] = CheckResult{Status: s}
			}
			if got := AggregateStatus(results); got != tt.want {
				t.Errorf("AggregateStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}
