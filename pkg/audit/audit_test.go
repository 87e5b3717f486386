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

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-passkey/pkg/rp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ rp.AuditSink = (*Logger)(nil)

func newCapture(t *testing.T, opts ...Option) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)), opts...)
	return logger, &buf
}

// lines decodes each JSON log line into a map.
func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_Events(t *testing.T) {
	logger, buf := newCapture(t)
	ctx := context.Background()
	credID := []byte{0xde, 0xad, 0xbe, 0xef}

	logger.RegistrationSucceeded(ctx, "alice", credID)
	logger.LoginSucceeded(ctx, "alice", credID)
	logger.LoginFailed(ctx, "alice", "10.0.0.1", "signature_invalid")
	logger.LockoutTriggered(ctx, "alice", "10.0.0.1")
	logger.PasswordLoginBlocked(ctx, "alice", "10.0.0.1")
	logger.CredentialRevoked(ctx, "alice", "admin", credID)

	entries := lines(t, buf)
	require.Len(t, entries, 6)

	events := make([]string, 0, len(entries))
	for _, entry := range entries {
		events = append(events, entry["event"].(string))
		assert.Equal(t, "alice", entry["user"])
	}
	assert.Equal(t, []string{
		"registration_succeeded",
		"login_succeeded",
		"login_failed",
		"lockout_triggered",
		"password_login_blocked",
		"credential_revoked",
	}, events)

	assert.Equal(t, "deadbeef", entries[0]["credential_id"])
	assert.Equal(t, "signature_invalid", entries[2]["kind"])
	assert.Equal(t, "admin", entries[5]["actor"])
}

func TestLogger_Redaction(t *testing.T) {
	logger, buf := newCapture(t, WithRedaction())
	ctx := context.Background()

	logger.LoginFailed(ctx, "alice", "10.0.0.1", "challenge_expired")
	logger.LoginFailed(ctx, "alice", "10.0.0.1", "challenge_expired")
	logger.LoginFailed(ctx, "bob", "10.0.0.1", "challenge_expired")

	entries := lines(t, buf)
	require.Len(t, entries, 3)

	first := entries[0]["user"].(string)
	assert.NotEqual(t, "alice", first)
	assert.Len(t, first, 32) // 128-bit digest, hex encoded
	assert.NotContains(t, buf.String(), "alice")

	// Deterministic per user, distinct across users.
	assert.Equal(t, first, entries[1]["user"])
	assert.NotEqual(t, first, entries[2]["user"])
}

func TestLogger_NilFallsBackToDefault(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)

	// Must not panic.
	logger.LoginSucceeded(context.Background(), "alice", nil)
}
