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

// Package pudgestore persists challenges and credentials in embedded
// pudge key/value files, for single-node deployments that must survive a
// restart. The single-use and compare-and-set disciplines of the memory
// stores are preserved by serializing writes behind one mutex per store.
package pudgestore

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-passkey/pkg/rp"
	"github.com/recoilme/pudge"
)

// ChallengeStore is a pudge-backed rp.ChallengeStore.
type ChallengeStore struct {
	mu   sync.Mutex
	db   *pudge.Db
	ttl  time.Duration
	size int
}

// NewChallengeStore opens (or creates) the challenge database under dir.
func NewChallengeStore(dir string, size int, ttl time.Duration) (*ChallengeStore, error) {
	if size < 16 {
		size = 32
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	db, err := pudge.Open(filepath.Join(dir, "challenges.db"), nil)
	if err != nil {
		return nil, rp.Infra("open challenge store", err)
	}

	return &ChallengeStore{
		db:   db,
		ttl:  ttl,
		size: size,
	}, nil
}

// Issue generates and persists a fresh challenge.
func (s *ChallengeStore) Issue(ctx context.Context, boundUsername string) (*rp.Challenge, error) {
	bytes := make([]byte, s.size)
	if _, err := rand.Read(bytes); err != nil {
		return nil, rp.Infra("issue challenge", err)
	}

	ch := &rp.Challenge{
		Token:    uuid.NewString(),
		Bytes:    bytes,
		Username: boundUsername,
		IssuedAt: time.Now().UTC(),
		TTL:      s.ttl,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Set(ch.Token, ch); err != nil {
		return nil, rp.Infra("issue challenge", err)
	}
	return ch, nil
}

// Consume looks up and deletes the challenge for token. The read and the
// delete happen under the store lock, so racing consumers of the same
// token cannot both succeed.
func (s *ChallengeStore) Consume(ctx context.Context, token string) (*rp.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ch rp.Challenge
	if err := s.db.Get(token, &ch); err != nil {
		if err == pudge.ErrKeyNotFound {
			return nil, rp.NewError("consume challenge", rp.ErrChallengeInvalid)
		}
		return nil, rp.Infra("consume challenge", err)
	}
	if err := s.db.Delete(token); err != nil {
		return nil, rp.Infra("consume challenge", err)
	}

	if ch.Expired(time.Now()) {
		return nil, rp.NewError("consume challenge", rp.ErrChallengeExpired)
	}
	return &ch, nil
}

// Sweep removes expired challenges and returns how many were purged.
func (s *ChallengeStore) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.db.Keys(nil, 0, 0, true)
	if err != nil {
		return 0, rp.Infra("sweep challenges", err)
	}

	now := time.Now()
	removed := 0
	for _, key := range keys {
		var ch rp.Challenge
		if err := s.db.Get(key, &ch); err != nil {
			continue
		}
		if ch.Expired(now) {
			if err := s.db.Delete(key); err != nil {
				return removed, rp.Infra("sweep challenges", err)
			}
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of outstanding challenges.
func (s *ChallengeStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Count()
}

// Close flushes and closes the underlying database.
func (s *ChallengeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
