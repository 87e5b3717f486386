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

package rp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockoutGuard_ThresholdTriggersLockout(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLockoutGuard(time.Minute, 3, time.Minute)

	require.NoError(t, guard.Check(ctx, "alice", "10.0.0.1"))

	for i := 0; i < 2; i++ {
		require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))
		require.NoError(t, guard.Check(ctx, "alice", "10.0.0.1"))
	}

	require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))
	require.ErrorIs(t, guard.Check(ctx, "alice", "10.0.0.1"), ErrLockedOut)
}

func TestLockoutGuard_SuccessClearsHistory(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLockoutGuard(time.Minute, 3, time.Minute)

	require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))
	require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))
	assert.Equal(t, 2, guard.Failures("alice", "10.0.0.1"))

	require.NoError(t, guard.RecordSuccess(ctx, "alice", "10.0.0.1"))
	assert.Equal(t, 0, guard.Failures("alice", "10.0.0.1"))

	// Counting starts over.
	require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))
	require.NoError(t, guard.Check(ctx, "alice", "10.0.0.1"))
}

func TestLockoutGuard_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLockoutGuard(time.Minute, 2, time.Minute)

	require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))
	require.NoError(t, guard.RecordFailure(ctx, "alice", "10.0.0.1"))

	require.ErrorIs(t, guard.Check(ctx, "alice", "10.0.0.1"), ErrLockedOut)
	require.NoError(t, guard.Check(ctx, "alice", "10.0.0.2"))
	require.NoError(t, guard.Check(ctx, "bob", "10.0.0.1"))
}

func TestLockoutGuard_WindowSlides(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLockoutGuard(30*time.Millisecond, 3, time.Minute)

	require.NoError(t, guard.RecordFailure(ctx, "alice", "c1"))
	require.NoError(t, guard.RecordFailure(ctx, "alice", "c1"))

	time.Sleep(40 * time.Millisecond)

	// Earlier failures slid out of the window; one more does not lock.
	require.NoError(t, guard.RecordFailure(ctx, "alice", "c1"))
	require.NoError(t, guard.Check(ctx, "alice", "c1"))
	assert.Equal(t, 1, guard.Failures("alice", "c1"))
}

func TestLockoutGuard_LockoutExpires(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLockoutGuard(20*time.Millisecond, 2, 30*time.Millisecond)

	require.NoError(t, guard.RecordFailure(ctx, "alice", "c1"))
	require.NoError(t, guard.RecordFailure(ctx, "alice", "c1"))
	require.ErrorIs(t, guard.Check(ctx, "alice", "c1"), ErrLockedOut)

	time.Sleep(50 * time.Millisecond)

	// Lockout elapsed and the failures slid out of the window.
	require.NoError(t, guard.Check(ctx, "alice", "c1"))
}

func TestLockoutGuard_PruneIdle(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryLockoutGuard(10*time.Millisecond, 5, 10*time.Millisecond)

	require.NoError(t, guard.RecordFailure(ctx, "alice", "c1"))
	require.NoError(t, guard.RecordFailure(ctx, "bob", "c2"))

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 2, guard.PruneIdle())
	assert.Equal(t, 0, guard.PruneIdle())
}
