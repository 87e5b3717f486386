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

package server

import (
	"context"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/rp"
)

// observedSink forwards audit events to the wrapped sink and mirrors the
// security-relevant ones into Prometheus counters.
type observedSink struct {
	rp.AuditSink
}

func (s observedSink) LoginFailed(ctx context.Context, username, clientID, kind string) {
	s.AuditSink.LoginFailed(ctx, username, clientID, kind)
	metrics.RecordFailure(kind)
	if kind == rp.FailureKind(rp.ErrCounterRegression) {
		metrics.RecordCloneWarning()
	}
}

func (s observedSink) LockoutTriggered(ctx context.Context, username, clientID string) {
	s.AuditSink.LockoutTriggered(ctx, username, clientID)
	metrics.RecordLockout()
}
