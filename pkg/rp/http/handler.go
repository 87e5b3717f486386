// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/rp"
)

// Handler provides HTTP handlers for passkey ceremonies. The handlers
// are router-agnostic http.HandlerFuncs; MountChi wires them to the
// canonical paths.
//
// Registration and credential-management routes must be mounted behind
// the host's authentication middleware; login routes are public.
type Handler struct {
	service   *rp.Service
	directory rp.UserDirectory
	logger    *slog.Logger
}

// NewHandler creates a passkey HTTP handler.
func NewHandler(service *rp.Service, directory rp.UserDirectory) *Handler {
	return &Handler{
		service:   service,
		directory: directory,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body: {"username": "alice"}
// Response: WebAuthn PublicKeyCredentialCreationOptions
// Header: X-Challenge-Token (hand back on the finish call)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	user, err := h.directory.LookupByUsername(r.Context(), req.Username)
	if err != nil {
		h.handleCeremonyError(w, r, err)
		return
	}

	opts, err := h.service.BeginRegistration(r.Context(), user)
	if err != nil {
		h.handleCeremonyError(w, r, err)
		return
	}

	w.Header().Set(HeaderChallengeToken, opts.Token)
	h.writeJSON(w, http.StatusOK, opts.Options)
}

// FinishRegistration handles POST /registration/finish
//
// Headers: X-Challenge-Token (required), X-Username (required),
// X-Credential-Label (optional).
// Request body: attestation response from the authenticator.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(HeaderChallengeToken)
	username := r.Header.Get(HeaderUsername)
	if token == "" || username == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	user, err := h.directory.LookupByUsername(r.Context(), username)
	if err != nil {
		h.handleCeremonyError(w, r, err)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	start := time.Now()
	cred, err := h.service.CompleteRegistration(r.Context(), response, token, user, r.Header.Get(HeaderCredentialLabel))
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusFailure, time.Since(start).Seconds())
		metrics.RecordFailure(rp.FailureKind(err))
		h.handleCeremonyError(w, r, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusSuccess, time.Since(start).Seconds())

	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
		Label:        cred.Label,
	})
}

// BeginLogin handles POST /login/begin
//
// Request body: {"username": "alice"} or an empty body for the
// discoverable flow.
// Response: WebAuthn PublicKeyCredentialRequestOptions
// Header: X-Challenge-Token (hand back on the finish call)
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	var req BeginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Empty body selects the discoverable flow.
		req = BeginLoginRequest{}
	}

	opts, err := h.service.BeginLogin(r.Context(), req.Username)
	if err != nil {
		h.handleCeremonyError(w, r, err)
		return
	}

	w.Header().Set(HeaderChallengeToken, opts.Token)
	h.writeJSON(w, http.StatusOK, opts.Options)
}

// FinishLogin handles POST /login/finish
//
// Headers: X-Challenge-Token (required), X-Username (empty for the
// discoverable flow).
// Request body: assertion response from the authenticator.
// Response: LoginResponse with the coarse verdict.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(HeaderChallengeToken)
	if token == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	start := time.Now()
	verdict, err := h.service.Login(r.Context(), &rp.LoginRequest{
		Username:       r.Header.Get(HeaderUsername),
		ClientID:       clientID(r),
		ChallengeToken: token,
		Assertion:      response,
	})
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeTryLater)
		return
	}

	status := metrics.StatusFailure
	if verdict.Authenticated {
		status = metrics.StatusSuccess
	}
	metrics.RecordCeremony(metrics.CeremonyAssertion, status, time.Since(start).Seconds())

	h.writeJSON(w, verdictStatus(verdict), LoginResponse{
		Authenticated: verdict.Authenticated,
		Code:          verdict.Code,
		Username:      verdict.Username,
		Token:         verdict.Token,
	})
}

// Credentials handles GET /credentials?username=alice
//
// Response: list of CredentialSummary, key material excluded.
func (h *Handler) Credentials(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	creds, err := h.service.Credentials(r.Context(), username)
	if err != nil {
		h.handleCeremonyError(w, r, err)
		return
	}

	out := make([]CredentialSummary, 0, len(creds))
	for _, cred := range creds {
		out = append(out, CredentialSummary{
			ID:           base64.RawURLEncoding.EncodeToString(cred.ID),
			Label:        cred.Label,
			CreatedAt:    cred.CreatedAt,
			LastUsedAt:   cred.LastUsedAt,
			Revoked:      cred.Revoked,
			CloneWarning: cred.CloneWarning,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// RevokeCredential handles POST /credentials/{id}/revoke
//
// The id path segment is the base64url credential ID.
// Request body: {"actor": "admin"} (optional).
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	credentialID, err := base64.RawURLEncoding.DecodeString(chi.URLParam(r, "id"))
	if err != nil || len(credentialID) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = RevokeRequest{}
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	if err := h.service.Revoke(r.Context(), credentialID, req.Actor); err != nil {
		h.handleCeremonyError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCeremonyError maps service errors to coarse HTTP responses.
// Every verification failure collapses to the same code and status; only
// lockout and infrastructure are distinguishable.
func (h *Handler) handleCeremonyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rp.ErrLockedOut):
		h.writeError(w, http.StatusTooManyRequests, ErrorCodeLockedOut)
	case errors.Is(err, rp.ErrInfrastructure):
		h.logger.Error("passkey infrastructure failure",
			"path", r.URL.Path,
			"error", err)
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeTryLater)
	case rp.IsVerificationFailure(err), errors.Is(err, rp.ErrDiscoverableDisabled):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
	default:
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeTryLater)
	}
}

// verdictStatus maps a verdict code to an HTTP status.
func verdictStatus(v *rp.Verdict) int {
	switch v.Code {
	case rp.VerdictOK:
		return http.StatusOK
	case rp.VerdictLockedOut:
		return http.StatusTooManyRequests
	case rp.VerdictTryLater:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// clientID derives the rate-limiter client key from the request.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes a coarse error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code string) {
	h.writeJSON(w, status, ErrorResponse{Code: code})
}
