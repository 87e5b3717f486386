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
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryChallengeStore is an in-process ChallengeStore. Expiry is enforced
// lazily on Consume; StartSweeper adds a periodic purge so abandoned
// ceremonies do not accumulate.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	ttl        time.Duration
	size       int
	stopSweep  chan struct{}
	sweepOnce  sync.Once
}

// NewMemoryChallengeStore creates a challenge store issuing size random
// bytes per challenge with the given TTL. Sizes below 16 bytes are raised
// to 32.
func NewMemoryChallengeStore(size int, ttl time.Duration) *MemoryChallengeStore {
	if size < 16 {
		size = 32
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
		ttl:        ttl,
		size:       size,
		stopSweep:  make(chan struct{}),
	}
}

// NewChallengeStoreFromPolicy creates a memory store sized per policy.
func NewChallengeStoreFromPolicy(p *Policy) *MemoryChallengeStore {
	return NewMemoryChallengeStore(p.ChallengeSize, p.ChallengeTTL)
}

// Issue generates fresh challenge bytes and a separate opaque token, and
// stores the pair. The token is the only caller-facing handle; the raw
// challenge never doubles as the lookup key.
func (s *MemoryChallengeStore) Issue(ctx context.Context, boundUsername string) (*Challenge, error) {
	bytes := make([]byte, s.size)
	if _, err := rand.Read(bytes); err != nil {
		return nil, Infra("issue challenge", err)
	}

	ch := &Challenge{
		Token:    uuid.NewString(),
		Bytes:    bytes,
		Username: boundUsername,
		IssuedAt: time.Now().UTC(),
		TTL:      s.ttl,
	}

	s.mu.Lock()
	s.challenges[ch.Token] = ch
	s.mu.Unlock()

	return ch, nil
}

// Consume atomically removes and returns the challenge for token. The
// lookup and delete happen under one lock so concurrent verify calls with
// the same token cannot both succeed.
func (s *MemoryChallengeStore) Consume(ctx context.Context, token string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[token]
	if !ok {
		return nil, NewError("consume challenge", ErrChallengeInvalid)
	}
	delete(s.challenges, token)

	if ch.Expired(time.Now()) {
		return nil, NewError("consume challenge", ErrChallengeExpired)
	}
	return ch, nil
}

// Count returns the number of outstanding challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Sweep removes expired challenges and returns how many were purged.
func (s *MemoryChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for token, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, token)
			removed++
		}
	}
	return removed
}

// StartSweeper launches a background purge at the given interval.
func (s *MemoryChallengeStore) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopSweep:
				return
			}
		}
	}()
}

// Stop halts the background sweeper if one is running.
func (s *MemoryChallengeStore) Stop() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}
