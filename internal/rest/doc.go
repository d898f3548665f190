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

// Package rest hosts the device trust HTTP server.
//
// The server mounts the WebAuthn, recovery key and authenticator
// management endpoints from pkg/webauthn/http under /api/v1 and adds the
// operational surface around them.
//
// # Server Setup
//
//	server, _ := rest.NewServer(&rest.Config{
//	    Address:       ":8443",
//	    WebAuthn:      webauthnhttp.NewHandler(svc).WithRecovery(rec, users),
//	    Keys:          issuer,
//	    HealthChecker: checker,
//	    Limiter:       ratelimit.New(&cfg.RateLimit),
//	    MetricsPath:   "/metrics",
//	})
//
//	go server.Start()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	server.Stop(ctx)
//
// # Endpoints
//
// Operational:
//   - GET /health - Aggregate status and version
//   - GET /health/live, /health/ready, /health/startup - Kubernetes probes
//   - GET /.well-known/jwks.json - Session token verification keys
//   - GET /metrics - Prometheus metrics, when enabled
//
// Everything under /api/v1 is rate limited per client IP. See
// pkg/webauthn/http for the API itself.
//
// # Middleware
//
// Requests pass through panic recovery, correlation IDs, request logging,
// Prometheus instrumentation and CORS, in that order. CORS headers are
// only sent for origins listed in the configuration.
package rest
