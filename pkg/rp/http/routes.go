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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the passkey routes on a chi router.
//
// Example:
//
//	handler := rphttp.NewHandler(svc, directory)
//	r.Route("/api/v1/passkey", func(r chi.Router) {
//	    rphttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/finish", h.FinishRegistration)
	r.Post("/login/begin", h.BeginLogin)
	r.Post("/login/finish", h.FinishLogin)
	r.Get("/credentials", h.Credentials)
	r.Post("/credentials/{id}/revoke", h.RevokeCredential)
}

// Router returns a standalone chi router with the passkey routes
// mounted at the root.
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	MountChi(r, h)
	return r
}
