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

package rest

import (
	"net/http"

	"github.com/jeremyhahn/go-devicetrust/pkg/health"
)

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	// Status is the overall health status
	Status health.Status `json:"status"`
	// Version is the server build version
	Version string `json:"version,omitempty"`
	// Message provides additional context
	Message string `json:"message,omitempty"`
	// Checks contains individual check results (for readiness)
	Checks []health.CheckResult `json:"checks,omitempty"`
}

// HealthHandler handles GET and HEAD /health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthCheckResponse{Status: health.StatusHealthy, Version: s.cfg.Version}
	if s.health != nil {
		resp.Status = health.AggregateStatus(s.health.Ready(r.Context()))
	}
	writeJSON(w, resp, statusCode(resp.Status))
}

// LivenessHandler handles GET /health/live requests.
//
// Liveness fails only when the process is in an unrecoverable state.
// https://kubernetes.io/docs/tasks/configure-pod-container/configure-liveness-readiness-startup-probes/
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service is alive"}, http.StatusOK)
		return
	}
	result := s.health.Live(r.Context())
	writeJSON(w, HealthCheckResponse{Status: result.Status, Message: result.Message}, statusCode(result.Status))
}

// ReadinessHandler handles GET /health/ready requests. It fails while a
// storage backend is unreachable or the server is shutting down.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service is ready"}, http.StatusOK)
		return
	}

	results := s.health.Ready(r.Context())
	resp := HealthCheckResponse{
		Status: health.AggregateStatus(results),
		Checks: results,
	}
	switch resp.Status {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}
	writeJSON(w, resp, statusCode(resp.Status))
}

// StartupHandler handles GET /health/startup requests.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, HealthCheckResponse{Status: health.StatusHealthy, Message: "Service has started"}, http.StatusOK)
		return
	}
	result := s.health.Startup(r.Context())
	writeJSON(w, HealthCheckResponse{Status: result.Status, Message: result.Message}, statusCode(result.Status))
}

// Degraded still serves traffic.
func statusCode(status health.Status) int {
	if status == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
