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

package health

import (
	"encoding/json"
	"net/http"
)

// probeResponse is the JSON body returned by the probe endpoints.
type probeResponse struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// LiveHandler serves the liveness probe.
func LiveHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Live(r.Context())
		writeProbe(w, probeResponse{
			Status: result.Status,
			Checks: []CheckResult{result},
		})
	}
}

// ReadyHandler serves the readiness probe. Returns 503 when any
// registered check is not healthy.
func ReadyHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.Ready(r.Context())
		writeProbe(w, probeResponse{
			Status: AggregateStatus(results),
			Checks: results,
		})
	}
}

// StartupHandler serves the startup probe. Returns 503 until
// MarkStarted has been called.
func StartupHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Startup(r.Context())
		writeProbe(w, probeResponse{
			Status: result.Status,
			Checks: []CheckResult{result},
		})
	}
}

// Mount registers the three probe endpoints on a mux under /health.
func Mount(mux *http.ServeMux, c *Checker) {
	mux.HandleFunc("/health/live", LiveHandler(c))
	mux.HandleFunc("/health/ready", ReadyHandler(c))
	mux.HandleFunc("/health/startup", StartupHandler(c))
}

func writeProbe(w http.ResponseWriter, body probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	if body.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}
