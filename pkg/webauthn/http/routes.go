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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the device trust routes on a chi router. Recovery routes
// are mounted only when the handler was configured WithRecovery.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc).WithRecovery(rec, users)
//	r.Route("/api/v1", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	for _, route := range h.Routes() {
		r.MethodFunc(route.Method, route.Path, route.Handler)
	}
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the route table. Paths use chi URL parameter syntax and
// the handlers read parameters with chi.URLParam.
func (h *Handler) Routes() []RouteEntry {
	routes := []RouteEntry{
		{Method: http.MethodPost, Path: "/webauthn/registration/options", Handler: h.RegistrationOptions},
		{Method: http.MethodPost, Path: "/webauthn/registration/verify", Handler: h.RegistrationVerify},
		{Method: http.MethodPost, Path: "/webauthn/authentication/options", Handler: h.AuthenticationOptions},
		{Method: http.MethodPost, Path: "/webauthn/authentication/verify", Handler: h.AuthenticationVerify},
		{Method: http.MethodGet, Path: "/users/{userId}/authenticators", Handler: h.ListAuthenticators},
		{Method: http.MethodPatch, Path: "/users/{userId}/authenticators/{credentialId}", Handler: h.RenameAuthenticator},
		{Method: http.MethodDelete, Path: "/users/{userId}/authenticators/{credentialId}", Handler: h.DeleteAuthenticator},
	}
	if h.recovery != nil {
		routes = append(routes,
			RouteEntry{Method: http.MethodPost, Path: "/recovery/generate", Handler: h.RecoveryGenerate},
			RouteEntry{Method: http.MethodPost, Path: "/recovery/verify", Handler: h.RecoveryVerify},
			RouteEntry{Method: http.MethodPost, Path: "/recovery/invalidate", Handler: h.RecoveryInvalidate},
		)
	}
	return routes
}

// Router returns a chi router serving the routes at its root.
//
// Example:
//
//	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", handler.Router()))
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	MountChi(r, h)
	return r
}
