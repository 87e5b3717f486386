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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware(t *testing.T) {
	Enable()

	// Reset metrics
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	// Create a test handler
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Wrap with middleware
	wrapped := HTTPMiddleware(handler)

	// Make a request
	req := httptest.NewRequest(http.MethodGet, "/login/begin", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	// Verify response
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	// Verify metrics were recorded
	value := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "200"))
	if value != 1 {
		t.Errorf("Expected request counter to be 1, got %f", value)
	}

	histCount := testutil.CollectAndCount(HTTPRequestDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram series, got %d", histCount)
	}
}

func TestHTTPMiddlewareCapturesErrorStatus(t *testing.T) {
	Enable()

	HTTPRequestsTotal.Reset()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	wrapped := HTTPMiddleware(handler)

	req := httptest.NewRequest(http.MethodPost, "/login/finish", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	value := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "401"))
	if value != 1 {
		t.Errorf("Expected 401 counter to be 1, got %f", value)
	}
}

func TestHTTPMiddlewareImplicitStatus(t *testing.T) {
	Enable()

	HTTPRequestsTotal.Reset()

	// Handler that writes without calling WriteHeader
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	})

	wrapped := HTTPMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/credentials", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	value := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "200"))
	if value != 1 {
		t.Errorf("Expected implicit 200 counter to be 1, got %f", value)
	}
}

func TestHTTPMiddlewareWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	HTTPRequestsTotal.Reset()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := HTTPMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/login/begin", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	// Request still succeeds
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	// But nothing was recorded
	count := testutil.CollectAndCount(HTTPRequestsTotal)
	if count != 0 {
		t.Errorf("Expected no requests recorded when disabled, got %d", count)
	}
}
