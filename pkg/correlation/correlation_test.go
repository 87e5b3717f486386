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

package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc-123")
	if got := GetRequestID(ctx); got != "abc-123" {
		t.Errorf("GetRequestID() = %v, want abc-123", got)
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %v, want empty", got)
	}
	if got := GetRequestID(nil); got != "" {
		t.Errorf("GetRequestID(nil) = %v, want empty", got)
	}
}

func TestNewID_Unique(t *testing.T) {
	if NewID() == NewID() {
		t.Error("NewID() returned duplicate IDs")
	}
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithRequestID(context.Background(), "existing")
	if got := GetOrGenerate(ctx); got != "existing" {
		t.Errorf("GetOrGenerate() = %v, want existing", got)
	}
	if got := GetOrGenerate(context.Background()); got == "" {
		t.Error("GetOrGenerate() should generate an ID")
	}
}

func TestMiddleware_GeneratesID(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Error("request context should carry a generated ID")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %v, want %v", got, seen)
	}
}

func TestMiddleware_HonorsIncomingID(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/login/begin", nil)
	req.Header.Set(RequestIDHeader, "ceremony-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "ceremony-7" {
		t.Errorf("request ID = %v, want ceremony-7", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "ceremony-7" {
		t.Errorf("response header = %v, want ceremony-7", got)
	}
}
