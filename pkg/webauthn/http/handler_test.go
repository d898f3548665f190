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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/session"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
	"github.com/jeremyhahn/go-devicetrust/pkg/webauthn"
)

type testServer struct {
	router http.Handler
	issuer *session.Issuer
	users  *user.MemoryStore
	rp     virtualwebauthn.RelyingParty
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := session.GenerateKey()
	require.NoError(t, err)
	issuer, err := session.NewIssuer(&session.Config{}, key)
	require.NoError(t, err)

	users := user.NewMemoryStore()
	cfg := &webauthn.Config{
		RPID:            "example.com",
		RPDisplayName:   "Example",
		RPOrigins:       []string{"https://example.com"},
		AutoCreateUsers: true,
	}
	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:         cfg,
		UserStore:      users,
		Registry:       authenticator.NewMemoryRegistry(),
		ChallengeStore: challenge.NewMemoryStore(),
		TokenIssuer:    issuer,
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)

	rec, err := recovery.NewService(recovery.ServiceParams{
		Config: &recovery.Config{
			Argon2id: recovery.Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32},
		},
		Store:       recovery.NewMemoryStore(),
		TokenIssuer: issuer,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	h := NewHandler(svc).
		WithLogger(logging.Discard()).
		WithRecovery(rec, users).
		WithTokenVerifier(issuer)

	return &testServer{
		router: h.Router(),
		issuer: issuer,
		users:  users,
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.issuer.IssueToken(context.Background(), userID, webauthn.MethodWebAuthn)
	require.NoError(t, err)
	return token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Error)
	return resp
}

// publicKeyOptions extracts the publicKey member of an options response.
func publicKeyOptions(t *testing.T, rec *httptest.ResponseRecorder) (OptionsResponse, string) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var raw struct {
		OptionsResponse
		PublicKey json.RawMessage `json:"publicKey"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	return raw.OptionsResponse, string(raw.PublicKey)
}

// register enrolls a virtual credential for userID through the HTTP API.
func (s *testServer) register(t *testing.T, userID string) (virtualwebauthn.Authenticator, virtualwebauthn.Credential, VerifyResponse) {
	t.Helper()
	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(userID),
	})
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, options := publicKeyOptions(t, s.do(t, http.MethodPost, "/webauthn/registration/options",
		RegistrationOptionsRequest{UserID: userID, DisplayName: "Test User"}, ""))
	parsed, err := virtualwebauthn.ParseAttestationOptions(options)
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(s.rp, auth, cred, *parsed)

	rec := s.do(t, http.MethodPost, "/webauthn/registration/verify", RegistrationVerifyRequest{
		UserID:     userID,
		DeviceName: "YubiKey",
		Response:   json.RawMessage(attestation),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	auth.AddCredential(cred)
	return auth, cred, decodeBody[VerifyResponse](t, rec)
}

func (s *testServer) assert(t *testing.T, userID string, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) string {
	t.Helper()
	_, options := publicKeyOptions(t, s.do(t, http.MethodPost, "/webauthn/authentication/options",
		AuthenticationOptionsRequest{UserID: userID}, ""))
	parsed, err := virtualwebauthn.ParseAssertionOptions(options)
	require.NoError(t, err)
	return virtualwebauthn.CreateAssertionResponse(s.rp, auth, cred, *parsed)
}

func TestRegistration_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/webauthn/registration/options",
		RegistrationOptionsRequest{UserID: "alice"}, "")
	opts, publicKey := publicKeyOptions(t, rec)
	assert.Equal(t, "registration", opts.Kind)
	assert.NotEmpty(t, opts.Challenge)
	assert.Contains(t, publicKey, opts.Challenge)

	_, _, resp := s.register(t, "bob")
	assert.True(t, resp.Verified)
	assert.Equal(t, "bob", resp.UserID)

	claims, err := s.issuer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)
	assert.Equal(t, webauthn.MethodWebAuthn, claims.Method)
}

func TestRegistration_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"options invalid body", "/webauthn/registration/options", "not json", http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"options missing user", "/webauthn/registration/options", RegistrationOptionsRequest{}, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"options invalid user id", "/webauthn/registration/options", RegistrationOptionsRequest{UserID: strings.Repeat("x", 65)}, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"verify missing response", "/webauthn/registration/verify", RegistrationVerifyRequest{UserID: "alice"}, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"verify garbage response", "/webauthn/registration/verify", RegistrationVerifyRequest{UserID: "alice", Response: json.RawMessage(`{"id":"x"}`)}, http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"auth verify missing response", "/webauthn/authentication/verify", AuthenticationVerifyRequest{}, http.StatusBadRequest, ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, s.do(t, http.MethodPost, tt.path, tt.body, ""), tt.status, tt.code)
		})
	}
}

func TestRegistration_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	body := `{"userId":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	assertError(t, s.do(t, http.MethodPost, "/webauthn/registration/options", body, ""),
		http.StatusRequestEntityTooLarge, ErrorCodeInvalidRequest)
}

func TestRegistration_NoPendingChallenge(t *testing.T) {
	s := newTestServer(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, options := publicKeyOptions(t, s.do(t, http.MethodPost, "/webauthn/registration/options",
		RegistrationOptionsRequest{UserID: "alice"}, ""))
	parsed, err := virtualwebauthn.ParseAttestationOptions(options)
	require.NoError(t, err)
	attestation := json.RawMessage(virtualwebauthn.CreateAttestationResponse(s.rp, auth, cred, *parsed))

	req := RegistrationVerifyRequest{UserID: "alice", Response: attestation}
	rec := s.do(t, http.MethodPost, "/webauthn/registration/verify", req, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decodeBody[VerifyResponse](t, rec).Token
	assertError(t, s.do(t, http.MethodPost, "/webauthn/registration/verify", req, token),
		http.StatusBadRequest, ErrorCodeChallengeExpired)
}

func TestRegistration_EnrolledAccountRequiresToken(t *testing.T) {
	s := newTestServer(t)
	_, _, reg := s.register(t, "alice")

	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("alice"),
	})
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	optionsReq := RegistrationOptionsRequest{UserID: "alice"}

	t.Run("options without token", func(t *testing.T) {
		assertError(t, s.do(t, http.MethodPost, "/webauthn/registration/options", optionsReq, ""),
			http.StatusUnauthorized, ErrorCodeUnauthenticated)
	})

	t.Run("options with another user's token", func(t *testing.T) {
		assertError(t, s.do(t, http.MethodPost, "/webauthn/registration/options", optionsReq, s.token(t, "mallory")),
			http.StatusForbidden, ErrorCodeNotAuthorized)
	})

	// The owner starts a ceremony; nobody else may finish it.
	_, options := publicKeyOptions(t, s.do(t, http.MethodPost, "/webauthn/registration/options", optionsReq, reg.Token))
	parsed, err := virtualwebauthn.ParseAttestationOptions(options)
	require.NoError(t, err)
	verifyReq := RegistrationVerifyRequest{
		UserID:   "alice",
		Response: json.RawMessage(virtualwebauthn.CreateAttestationResponse(s.rp, auth, cred, *parsed)),
	}

	t.Run("verify without token", func(t *testing.T) {
		assertError(t, s.do(t, http.MethodPost, "/webauthn/registration/verify", verifyReq, ""),
			http.StatusUnauthorized, ErrorCodeUnauthenticated)
	})

	t.Run("verify with another user's token", func(t *testing.T) {
		assertError(t, s.do(t, http.MethodPost, "/webauthn/registration/verify", verifyReq, s.token(t, "mallory")),
			http.StatusForbidden, ErrorCodeNotAuthorized)
	})

	t.Run("owner adds a second authenticator", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/webauthn/registration/verify", verifyReq, reg.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/users/alice/authenticators", nil, reg.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[AuthenticatorListResponse](t, rec).Authenticators, 2)
	})
}

func TestRegistration_AccountWithoutAuthenticatorsIsOpen(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.users.Create(context.Background(), &user.User{ID: "carol", Name: "carol"}))

	_, _, resp := s.register(t, "carol")
	assert.True(t, resp.Verified)
	assert.Equal(t, "carol", resp.UserID)
}

func TestAuthentication_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	auth, cred, _ := s.register(t, "alice")

	for _, userID := range []string{"alice", ""} {
		cred.Counter++
		assertion := s.assert(t, userID, auth, cred)

		rec := s.do(t, http.MethodPost, "/webauthn/authentication/verify",
			AuthenticationVerifyRequest{Response: json.RawMessage(assertion)}, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeBody[VerifyResponse](t, rec)
		assert.True(t, resp.Verified)
		assert.Equal(t, "alice", resp.UserID)
		assert.NotEmpty(t, resp.Token)
	}
}

func TestAuthentication_EmptyBodyIsDiscoverable(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/webauthn/authentication/options", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	opts, publicKey := publicKeyOptions(t, rec)
	assert.Equal(t, "authentication", opts.Kind)
	assert.NotContains(t, publicKey, "allowCredentials")
}

func TestAuthentication_Failures(t *testing.T) {
	s := newTestServer(t)
	auth, cred, _ := s.register(t, "alice")

	t.Run("unknown user and user without authenticators look alike", func(t *testing.T) {
		require.NoError(t, s.users.Create(context.Background(), &user.User{ID: "dave", Name: "dave"}))

		unknown := s.do(t, http.MethodPost, "/webauthn/authentication/options",
			AuthenticationOptionsRequest{UserID: "nobody"}, "")
		empty := s.do(t, http.MethodPost, "/webauthn/authentication/options",
			AuthenticationOptionsRequest{UserID: "dave"}, "")
		assert.Equal(t, unknown.Body.String(), empty.Body.String())
		assertError(t, unknown, http.StatusUnauthorized, ErrorCodeAuthenticationFailed)
		assertError(t, empty, http.StatusUnauthorized, ErrorCodeAuthenticationFailed)
	})

	t.Run("unregistered credential", func(t *testing.T) {
		stranger := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{UserHandle: []byte("alice")})
		strangerCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
		stranger.AddCredential(strangerCred)
		assertion := s.assert(t, "", stranger, strangerCred)

		resp := assertError(t, s.do(t, http.MethodPost, "/webauthn/authentication/verify",
			AuthenticationVerifyRequest{Response: json.RawMessage(assertion)}, ""),
			http.StatusUnauthorized, ErrorCodeAuthenticationFailed)
		assert.Equal(t, "authentication failed", resp.Message)
	})

	t.Run("replay", func(t *testing.T) {
		cred.Counter = 10
		body := AuthenticationVerifyRequest{Response: json.RawMessage(s.assert(t, "alice", auth, cred))}
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/webauthn/authentication/verify", body, "").Code)
		assertError(t, s.do(t, http.MethodPost, "/webauthn/authentication/verify", body, ""),
			http.StatusBadRequest, ErrorCodeChallengeExpired)
	})

	t.Run("counter regression", func(t *testing.T) {
		cred.Counter = 3
		resp := assertError(t, s.do(t, http.MethodPost, "/webauthn/authentication/verify",
			AuthenticationVerifyRequest{Response: json.RawMessage(s.assert(t, "alice", auth, cred))}, ""),
			http.StatusUnauthorized, ErrorCodeAuthenticationFailed)
		assert.Equal(t, "authentication failed", resp.Message)
	})
}

func TestRecovery_Flow(t *testing.T) {
	s := newTestServer(t)
	_, _, reg := s.register(t, "alice")

	rec := s.do(t, http.MethodPost, "/recovery/generate", RecoveryRequest{UserID: "alice"}, reg.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	key := decodeBody[RecoveryKeyResponse](t, rec).RecoveryKey
	assert.Regexp(t, `^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`, key)

	rec = s.do(t, http.MethodPost, "/recovery/verify",
		RecoveryVerifyRequest{UserID: "alice", RecoveryKey: strings.ToLower(key)}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[VerifyResponse](t, rec)
	assert.True(t, resp.Verified)
	claims, err := s.issuer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, recovery.MethodRecoveryKey, claims.Method)

	// One shot.
	msg := assertError(t, s.do(t, http.MethodPost, "/recovery/verify",
		RecoveryVerifyRequest{UserID: "alice", RecoveryKey: key}, ""),
		http.StatusUnauthorized, ErrorCodeAuthenticationFailed)
	assert.Equal(t, "authentication failed", msg.Message)

	rec = s.do(t, http.MethodPost, "/recovery/generate", RecoveryRequest{UserID: "alice"}, reg.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	key = decodeBody[RecoveryKeyResponse](t, rec).RecoveryKey

	rec = s.do(t, http.MethodPost, "/recovery/invalidate", RecoveryRequest{UserID: "alice"}, reg.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[OKResponse](t, rec).OK)

	assertError(t, s.do(t, http.MethodPost, "/recovery/verify",
		RecoveryVerifyRequest{UserID: "alice", RecoveryKey: key}, ""),
		http.StatusUnauthorized, ErrorCodeAuthenticationFailed)
}

func TestRecovery_Errors(t *testing.T) {
	s := newTestServer(t)
	_, _, reg := s.register(t, "alice")

	tests := []struct {
		name   string
		path   string
		body   any
		token  string
		status int
		code   string
	}{
		{"generate without token", "/recovery/generate", RecoveryRequest{UserID: "alice"}, "", http.StatusUnauthorized, ErrorCodeUnauthenticated},
		{"generate with bad token", "/recovery/generate", RecoveryRequest{UserID: "alice"}, "bogus", http.StatusUnauthorized, ErrorCodeUnauthenticated},
		{"generate for another user", "/recovery/generate", RecoveryRequest{UserID: "bob"}, reg.Token, http.StatusForbidden, ErrorCodeNotAuthorized},
		{"generate for unknown user", "/recovery/generate", RecoveryRequest{UserID: "ghost"}, s.token(t, "ghost"), http.StatusNotFound, ErrorCodeUserNotFound},
		{"invalidate for another user", "/recovery/invalidate", RecoveryRequest{UserID: "bob"}, reg.Token, http.StatusForbidden, ErrorCodeNotAuthorized},
		{"verify unknown user", "/recovery/verify", RecoveryVerifyRequest{UserID: "ghost", RecoveryKey: "AAAA-BBBB-CCCC-DDDD"}, "", http.StatusUnauthorized, ErrorCodeAuthenticationFailed},
		{"verify malformed key", "/recovery/verify", RecoveryVerifyRequest{UserID: "alice", RecoveryKey: "short"}, "", http.StatusUnauthorized, ErrorCodeAuthenticationFailed},
		{"verify missing key", "/recovery/verify", RecoveryVerifyRequest{UserID: "alice"}, "", http.StatusBadRequest, ErrorCodeInvalidRequest},
		{"verify missing user", "/recovery/verify", RecoveryVerifyRequest{RecoveryKey: "AAAA-BBBB-CCCC-DDDD"}, "", http.StatusUnauthorized, ErrorCodeAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, s.do(t, http.MethodPost, tt.path, tt.body, tt.token), tt.status, tt.code)
		})
	}
}

func TestRecovery_Disabled(t *testing.T) {
	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config: &webauthn.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
		},
		UserStore:      user.NewMemoryStore(),
		Registry:       authenticator.NewMemoryRegistry(),
		ChallengeStore: challenge.NewMemoryStore(),
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)
	h := NewHandler(svc).WithLogger(logging.Discard())

	for _, route := range h.Routes() {
		assert.NotContains(t, route.Path, "/recovery/")
	}

	rec := httptest.NewRecorder()
	h.RecoveryVerify(rec, httptest.NewRequest(http.MethodPost, "/recovery/verify", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthenticators_Manage(t *testing.T) {
	s := newTestServer(t)
	_, cred, reg := s.register(t, "alice")
	_, _, bob := s.register(t, "bob")
	credentialID := authenticator.EncodeID(cred.ID)
	path := "/users/alice/authenticators"

	rec := s.do(t, http.MethodGet, path, nil, reg.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeBody[AuthenticatorListResponse](t, rec)
	require.Len(t, list.Authenticators, 1)
	assert.Equal(t, credentialID, list.Authenticators[0].CredentialID)
	assert.Equal(t, "YubiKey", list.Authenticators[0].DeviceName)
	assert.NotContains(t, rec.Body.String(), "publicKey")

	assertError(t, s.do(t, http.MethodGet, path, nil, ""), http.StatusUnauthorized, ErrorCodeUnauthenticated)
	assertError(t, s.do(t, http.MethodGet, path, nil, bob.Token), http.StatusForbidden, ErrorCodeNotAuthorized)

	rec = s.do(t, http.MethodPatch, path+"/"+credentialID, RenameRequest{DeviceName: "Laptop"}, reg.Token)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assertError(t, s.do(t, http.MethodPatch, path+"/"+credentialID, RenameRequest{}, reg.Token),
		http.StatusBadRequest, ErrorCodeInvalidRequest)

	// Bob may act as bob but cannot touch alice's credential.
	assertError(t, s.do(t, http.MethodDelete, "/users/bob/authenticators/"+credentialID, nil, bob.Token),
		http.StatusForbidden, ErrorCodeNotAuthorized)

	assertError(t, s.do(t, http.MethodDelete, path+"/!!!!", nil, reg.Token),
		http.StatusBadRequest, ErrorCodeInvalidRequest)
	assertError(t, s.do(t, http.MethodDelete, path+"/"+authenticator.EncodeID([]byte("missing")), nil, reg.Token),
		http.StatusNotFound, ErrorCodeNotFound)

	rec = s.do(t, http.MethodDelete, path+"/"+credentialID, nil, reg.Token)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, path, nil, reg.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[AuthenticatorListResponse](t, rec).Authenticators)
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/webauthn/registration/options", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	h := NewHandler(nil).WithRecovery(&recovery.Service{}, user.NewMemoryStore())

	type key struct{ method, path string }
	got := map[key]bool{}
	for _, r := range h.Routes() {
		assert.NotNil(t, r.Handler)
		got[key{r.Method, r.Path}] = true
	}
	for _, want := range []key{
		{http.MethodPost, "/webauthn/registration/options"},
		{http.MethodPost, "/webauthn/registration/verify"},
		{http.MethodPost, "/webauthn/authentication/options"},
		{http.MethodPost, "/webauthn/authentication/verify"},
		{http.MethodPost, "/recovery/generate"},
		{http.MethodPost, "/recovery/verify"},
		{http.MethodPost, "/recovery/invalidate"},
		{http.MethodGet, "/users/{userId}/authenticators"},
		{http.MethodPatch, "/users/{userId}/authenticators/{credentialId}"},
		{http.MethodDelete, "/users/{userId}/authenticators/{credentialId}"},
	} {
		assert.True(t, got[want], "missing route %s %s", want.method, want.path)
	}
}
