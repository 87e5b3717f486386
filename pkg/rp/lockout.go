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
	"sync"
	"time"
)

// lockoutEntry tracks failures and lockout state for one key.
type lockoutEntry struct {
	failures    []time.Time
	lockedUntil time.Time
}

// MemoryLockoutGuard is an in-process LockoutGuard: a sliding window of
// failure timestamps per (username, client) key, with a time-boxed
// lockout once the threshold is reached inside the window. Lockouts
// self-expire; a single success clears the key entirely.
type MemoryLockoutGuard struct {
	mu        sync.Mutex
	entries   map[string]*lockoutEntry
	window    time.Duration
	threshold int
	duration  time.Duration
}

// NewMemoryLockoutGuard creates a guard with the given sliding window,
// failure threshold and lockout duration.
func NewMemoryLockoutGuard(window time.Duration, threshold int, duration time.Duration) *MemoryLockoutGuard {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 5
	}
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	return &MemoryLockoutGuard{
		entries:   make(map[string]*lockoutEntry),
		window:    window,
		threshold: threshold,
		duration:  duration,
	}
}

// NewLockoutGuardFromPolicy creates a memory guard sized per policy.
func NewLockoutGuardFromPolicy(p *Policy) *MemoryLockoutGuard {
	return NewMemoryLockoutGuard(p.RateLimitWindow, p.LockoutThreshold, p.LockoutDuration)
}

// lockoutKey joins username and client into one map key. The username is
// included even before identity is confirmed; see LockoutGuard docs.
func lockoutKey(username, clientID string) string {
	return username + "\x00" + clientID
}

// Check fails ErrLockedOut while a lockout is active, or when the pruned
// failure count already meets the threshold. Called before any
// cryptographic work.
func (g *MemoryLockoutGuard) Check(ctx context.Context, username, clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[lockoutKey(username, clientID)]
	if !ok {
		return nil
	}

	now := time.Now()
	if now.Before(entry.lockedUntil) {
		return NewError("check lockout", ErrLockedOut)
	}

	g.prune(entry, now)
	if len(entry.failures) >= g.threshold {
		return NewError("check lockout", ErrLockedOut)
	}
	return nil
}

// RecordFailure appends a timestamped failure. Reaching the threshold
// within the window starts (or extends) the lockout.
func (g *MemoryLockoutGuard) RecordFailure(ctx context.Context, username, clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := lockoutKey(username, clientID)
	entry, ok := g.entries[key]
	if !ok {
		entry = &lockoutEntry{}
		g.entries[key] = entry
	}

	now := time.Now()
	g.prune(entry, now)
	entry.failures = append(entry.failures, now)

	if len(entry.failures) >= g.threshold {
		entry.lockedUntil = now.Add(g.duration)
	}
	return nil
}

// RecordSuccess clears all failure and lockout state for the key.
func (g *MemoryLockoutGuard) RecordSuccess(ctx context.Context, username, clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.entries, lockoutKey(username, clientID))
	return nil
}

// Failures returns the current in-window failure count for a key.
func (g *MemoryLockoutGuard) Failures(username, clientID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[lockoutKey(username, clientID)]
	if !ok {
		return 0
	}
	g.prune(entry, time.Now())
	return len(entry.failures)
}

// prune drops failures that slid out of the window. Caller holds the lock.
func (g *MemoryLockoutGuard) prune(entry *lockoutEntry, now time.Time) {
	cutoff := now.Add(-g.window)
	kept := entry.failures[:0]
	for _, t := range entry.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	entry.failures = kept
}

// PruneIdle removes keys with no in-window failures and no active
// lockout, bounding memory under churn.
func (g *MemoryLockoutGuard) PruneIdle() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range g.entries {
		g.prune(entry, now)
		if len(entry.failures) == 0 && !now.Before(entry.lockedUntil) {
			delete(g.entries, key)
			removed++
		}
	}
	return removed
}
