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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryCredentialRepository is an in-process CredentialRepository.
// Suitable for development, testing and single-node deployments; the
// production contract is a relational table uniquely indexed on the
// credential ID.
type MemoryCredentialRepository struct {
	mu     sync.RWMutex
	byID   map[string]*Credential
	byUser map[string][]string
}

// NewMemoryCredentialRepository creates an empty repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		byID:   make(map[string]*Credential),
		byUser: make(map[string][]string),
	}
}

// FindByCredentialID returns the credential with the given ID.
func (r *MemoryCredentialRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, NewError("find credential", ErrCredentialUnknown)
	}
	out := *cred
	return &out, nil
}

// FindAllForUser returns every credential for the user handle, revoked
// ones included.
func (r *MemoryCredentialRepository) FindAllForUser(ctx context.Context, userHandle []byte) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[hex.EncodeToString(userHandle)]
	out := make([]*Credential, 0, len(ids))
	for _, id := range ids {
		if cred, ok := r.byID[id]; ok {
			c := *cred
			out = append(out, &c)
		}
	}
	return out, nil
}

// Insert stores a new credential. Credential IDs are unique system-wide;
// an already-stored ID fails ErrCredentialExists regardless of which user
// owns it, leaving the stored record untouched.
func (r *MemoryCredentialRepository) Insert(ctx context.Context, cred *Credential) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hex.EncodeToString(cred.ID)
	if _, exists := r.byID[key]; exists {
		return nil, NewError("insert credential", ErrCredentialExists)
	}

	c := *cred
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.byID[key] = &c
	userKey := hex.EncodeToString(c.UserHandle)
	r.byUser[userKey] = append(r.byUser[userKey], key)
	out := c
	return &out, nil
}

// Save updates mutable fields of an existing credential. Revocation
// fields are set-once.
func (r *MemoryCredentialRepository) Save(ctx context.Context, cred *Credential) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.byID[hex.EncodeToString(cred.ID)]
	if !exists {
		return nil, NewError("save credential", ErrCredentialUnknown)
	}

	stored.Label = cred.Label
	stored.SignCount = cred.SignCount
	stored.LastUsedAt = cred.LastUsedAt
	stored.CloneWarning = stored.CloneWarning || cred.CloneWarning
	if !stored.Revoked && cred.Revoked {
		stored.Revoked = true
		stored.RevokedAt = cred.RevokedAt
		stored.RevokedBy = cred.RevokedBy
	}

	out := *stored
	return &out, nil
}

// UpdateSignCount applies a compare-and-set counter update. Two racing
// assertions against the same credential cannot both commit.
func (r *MemoryCredentialRepository) UpdateSignCount(ctx context.Context, credentialID []byte, prev, next uint32, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return NewError("update sign count", ErrCredentialUnknown)
	}
	if stored.SignCount != prev {
		return NewError("update sign count", ErrCounterConflict)
	}

	stored.SignCount = next
	stored.LastUsedAt = usedAt
	return nil
}

// MarkCloneWarning flags the credential for review.
func (r *MemoryCredentialRepository) MarkCloneWarning(ctx context.Context, credentialID []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return NewError("mark clone warning", ErrCredentialUnknown)
	}
	stored.CloneWarning = true
	return nil
}

// Revoke terminally disables the credential. Idempotent.
func (r *MemoryCredentialRepository) Revoke(ctx context.Context, credentialID []byte, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return NewError("revoke credential", ErrCredentialUnknown)
	}
	if stored.Revoked {
		return nil
	}
	stored.Revoked = true
	stored.RevokedAt = time.Now().UTC()
	stored.RevokedBy = actor
	return nil
}

// Count returns the number of stored credentials.
func (r *MemoryCredentialRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
