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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/session"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
	"github.com/jeremyhahn/go-devicetrust/pkg/webauthn"
)

// TokenVerifier validates bearer session tokens. *session.Issuer implements it.
type TokenVerifier interface {
	Verify(token string) (*session.Claims, error)
}

// Handler provides HTTP handlers for device trust operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service  *webauthn.Service
	recovery *recovery.Service
	users    user.Store
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewHandler creates a new WebAuthn HTTP handler.
func NewHandler(service *webauthn.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithRecovery enables the recovery key endpoints. users is consulted so
// keys are only generated for existing accounts.
func (h *Handler) WithRecovery(svc *recovery.Service, users user.Store) *Handler {
	h.recovery = svc
	h.users = users
	return h
}

// WithTokenVerifier requires a bearer session token whose subject matches
// the target user on account management endpoints: recovery generate and
// invalidate, authenticator list, rename and delete, and registration for
// an account that already has an authenticator.
func (h *Handler) WithTokenVerifier(v TokenVerifier) *Handler {
	h.verifier = v
	return h
}

// RegistrationOptions handles POST /webauthn/registration/options
//
// Request body:
//
//	{
//	    "userId": "alice",
//	    "displayName": "Alice" // optional
//	}
//
// Response: OptionsResponse with publicKey creation options
func (h *Handler) RegistrationOptions(w http.ResponseWriter, r *http.Request) {
	var req RegistrationOptionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "userId is required")
		return
	}
	if !h.authorizeEnrollment(w, r, req.UserID) {
		return
	}

	opts, err := h.service.BeginRegistration(r.Context(), req.UserID, req.DisplayName)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOptionsResponse(opts))
}

// RegistrationVerify handles POST /webauthn/registration/verify
//
// Request body: userId, optional deviceName and the attestation response
// Response: VerifyResponse with an optional session token
func (h *Handler) RegistrationVerify(w http.ResponseWriter, r *http.Request) {
	var req RegistrationVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || len(req.Response) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "userId and response are required")
		return
	}
	if !h.authorizeEnrollment(w, r, req.UserID) {
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBytes(req.Response)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	result, err := h.service.CompleteRegistration(r.Context(), req.UserID, req.DeviceName, response)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyResponse{
		Verified: result.Verified,
		UserID:   req.UserID,
		Token:    result.Token,
	})
}

// AuthenticationOptions handles POST /webauthn/authentication/options
//
// An empty body or empty userId starts a discoverable credential ceremony.
// An unknown user and a user without authenticators get the same response.
func (h *Handler) AuthenticationOptions(w http.ResponseWriter, r *http.Request) {
	var req AuthenticationOptionsRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	opts, err := h.service.BeginAuthentication(r.Context(), req.UserID)
	if errors.Is(err, webauthn.ErrUserNotFound) || errors.Is(err, webauthn.ErrNoAuthenticators) {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeAuthenticationFailed, messageAuthenticationFailed)
		return
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newOptionsResponse(opts))
}

// AuthenticationVerify handles POST /webauthn/authentication/verify
//
// The account is identified by the credential in the assertion. The
// response carries the verified userId.
func (h *Handler) AuthenticationVerify(w http.ResponseWriter, r *http.Request) {
	var req AuthenticationVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Response) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "response is required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBytes(req.Response)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.service.CompleteAuthentication(r.Context(), response)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyResponse{
		Verified: result.Verified,
		UserID:   result.UserID,
		Token:    result.Token,
	})
}

// RecoveryGenerate handles POST /recovery/generate
//
// Response: {"recoveryKey": "XXXX-XXXX-XXXX-XXXX"}
func (h *Handler) RecoveryGenerate(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if !h.decodeRecovery(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}
	if _, err := h.users.Get(r.Context(), req.UserID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	key, err := h.recovery.Generate(r.Context(), req.UserID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, RecoveryKeyResponse{RecoveryKey: key})
}

// RecoveryVerify handles POST /recovery/verify
//
// Unknown users and wrong, used or expired keys are indistinguishable.
func (h *Handler) RecoveryVerify(w http.ResponseWriter, r *http.Request) {
	var req RecoveryVerifyRequest
	if !h.decodeRecovery(w, r, &req) {
		return
	}
	if req.RecoveryKey == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "recoveryKey is required")
		return
	}

	result, err := h.recovery.Verify(r.Context(), req.UserID, req.RecoveryKey)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyResponse{
		Verified: result.Verified,
		UserID:   result.UserID,
		Token:    result.Token,
	})
}

// RecoveryInvalidate handles POST /recovery/invalidate
func (h *Handler) RecoveryInvalidate(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if !h.decodeRecovery(w, r, &req) {
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}
	if err := h.recovery.Invalidate(r.Context(), req.UserID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ListAuthenticators handles GET /users/{userId}/authenticators
func (h *Handler) ListAuthenticators(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !h.authorize(w, r, userID) {
		return
	}
	auths, err := h.service.ListAuthenticators(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp := AuthenticatorListResponse{Authenticators: make([]AuthenticatorResponse, len(auths))}
	for i, a := range auths {
		resp.Authenticators[i] = newAuthenticatorResponse(a)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// RenameAuthenticator handles PATCH /users/{userId}/authenticators/{credentialId}
func (h *Handler) RenameAuthenticator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !h.authorize(w, r, userID) {
		return
	}
	credentialID, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	var req RenameRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RenameAuthenticator(r.Context(), userID, credentialID, req.DeviceName); err != nil {
		h.handleManagementError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAuthenticator handles DELETE /users/{userId}/authenticators/{credentialId}
func (h *Handler) DeleteAuthenticator(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !h.authorize(w, r, userID) {
		return
	}
	credentialID, ok := h.credentialID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAuthenticator(r.Context(), userID, credentialID); err != nil {
		h.handleManagementError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleManagementError reports a missing authenticator as 404. On the
// ceremony endpoints the same error is an authentication failure.
func (h *Handler) handleManagementError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, webauthn.ErrAuthenticatorNotFound) {
		h.writeError(w, http.StatusNotFound, ErrorCodeNotFound, "authenticator not found")
		return
	}
	h.handleServiceError(w, r, err)
}

func (h *Handler) credentialID(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	id, err := authenticator.DecodeID(chi.URLParam(r, "credentialId"))
	if err != nil || len(id) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential ID encoding")
		return nil, false
	}
	return id, true
}

// authorize checks the bearer token against userID when a verifier is
// configured. It writes the error response and returns false on failure.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.verifier == nil {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthenticated, "bearer token required")
		return false
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthenticated, "invalid bearer token")
		return false
	}
	if claims.Subject != userID {
		h.writeError(w, http.StatusForbidden, ErrorCodeNotAuthorized, "not authorized")
		return false
	}
	return true
}

// authorizeEnrollment lets a new account register its first authenticator
// without a token. Once the account has one, adding another needs a session
// token for that account.
func (h *Handler) authorizeEnrollment(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.verifier == nil {
		return true
	}
	enrolled, err := h.service.HasAuthenticators(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return false
	}
	if !enrolled {
		return true
	}
	return h.authorize(w, r, userID)
}

func (h *Handler) decodeRecovery(w http.ResponseWriter, r *http.Request, v any) bool {
	if h.recovery == nil {
		h.writeError(w, http.StatusNotFound, ErrorCodeNotFound, "recovery keys are not enabled")
		return false
	}
	return h.decode(w, r, v)
}

// decode reads a JSON request body into v. It writes the error response
// and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeInvalidRequest, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return false
	}
	return true
}

// handleServiceError maps service errors to HTTP responses. Verification
// failures share one message so a caller cannot tell which check failed.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webauthn.ErrChallengeExpiredOrMissing):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeExpired, "challenge expired or missing")
	case errors.Is(err, webauthn.ErrVerificationFailed),
		errors.Is(err, webauthn.ErrAuthenticatorNotFound),
		errors.Is(err, webauthn.ErrCounterRegression),
		errors.Is(err, recovery.ErrInvalid):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeAuthenticationFailed, messageAuthenticationFailed)
	case errors.Is(err, webauthn.ErrDuplicateCredential):
		h.writeError(w, http.StatusConflict, ErrorCodeDuplicateCredential, "credential already registered")
	case errors.Is(err, webauthn.ErrNotAuthorized):
		h.writeError(w, http.StatusForbidden, ErrorCodeNotAuthorized, "not authorized")
	case errors.Is(err, webauthn.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case errors.Is(err, webauthn.ErrInvalidRequest),
		errors.Is(err, user.ErrInvalidUserID),
		errors.Is(err, recovery.ErrUserIDRequired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, messageInternalError)
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
