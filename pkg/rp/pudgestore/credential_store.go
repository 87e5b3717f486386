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

package pudgestore

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/rp"
	"github.com/recoilme/pudge"
)

// CredentialStore is a pudge-backed rp.CredentialRepository. Credentials
// are keyed by hex credential ID; a second file keeps the user-handle
// index. All writes are serialized behind one mutex, which is what makes
// UpdateSignCount an honest compare-and-set.
type CredentialStore struct {
	mu    sync.Mutex
	creds *pudge.Db
	index *pudge.Db
}

// NewCredentialStore opens (or creates) the credential databases under dir.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	creds, err := pudge.Open(filepath.Join(dir, "credentials.db"), nil)
	if err != nil {
		return nil, rp.Infra("open credential store", err)
	}
	index, err := pudge.Open(filepath.Join(dir, "credentials_index.db"), nil)
	if err != nil {
		creds.Close()
		return nil, rp.Infra("open credential store", err)
	}
	return &CredentialStore{creds: creds, index: index}, nil
}

// FindByCredentialID returns the credential with the given ID.
func (s *CredentialStore) FindByCredentialID(ctx context.Context, credentialID []byte) (*rp.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(credentialID)
}

// get reads one credential. Caller holds the lock.
func (s *CredentialStore) get(credentialID []byte) (*rp.Credential, error) {
	var cred rp.Credential
	if err := s.creds.Get(hex.EncodeToString(credentialID), &cred); err != nil {
		if err == pudge.ErrKeyNotFound {
			return nil, rp.NewError("find credential", rp.ErrCredentialUnknown)
		}
		return nil, rp.Infra("find credential", err)
	}
	return &cred, nil
}

// FindAllForUser returns every credential for the user handle, revoked
// ones included.
func (s *CredentialStore) FindAllForUser(ctx context.Context, userHandle []byte) ([]*rp.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.userIndex(userHandle)
	if err != nil {
		return nil, err
	}

	out := make([]*rp.Credential, 0, len(ids))
	for _, id := range ids {
		raw, err := hex.DecodeString(id)
		if err != nil {
			continue
		}
		cred, err := s.get(raw)
		if err != nil {
			continue
		}
		out = append(out, cred)
	}
	return out, nil
}

// userIndex reads the credential ID list for a user handle. Caller holds
// the lock.
func (s *CredentialStore) userIndex(userHandle []byte) ([]string, error) {
	var ids []string
	if err := s.index.Get(hex.EncodeToString(userHandle), &ids); err != nil {
		if err == pudge.ErrKeyNotFound {
			return nil, nil
		}
		return nil, rp.Infra("read user index", err)
	}
	return ids, nil
}

// Insert stores a new credential. Credential IDs are unique system-wide;
// an already-stored ID fails ErrCredentialExists regardless of which user
// owns it, leaving the stored record untouched.
func (s *CredentialStore) Insert(ctx context.Context, cred *rp.Credential) (*rp.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(cred.ID)
	_, err := s.get(cred.ID)
	switch {
	case err == nil:
		return nil, rp.NewError("insert credential", rp.ErrCredentialExists)
	case errors.Is(err, rp.ErrCredentialUnknown):
	default:
		return nil, err
	}

	c := *cred
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := s.creds.Set(key, &c); err != nil {
		return nil, rp.Infra("insert credential", err)
	}

	ids, err := s.userIndex(c.UserHandle)
	if err != nil {
		return nil, err
	}
	ids = append(ids, key)
	if err := s.index.Set(hex.EncodeToString(c.UserHandle), ids); err != nil {
		return nil, rp.Infra("insert credential", err)
	}
	out := c
	return &out, nil
}

// Save updates mutable fields of an existing credential. Revocation
// fields are set-once.
func (s *CredentialStore) Save(ctx context.Context, cred *rp.Credential) (*rp.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.get(cred.ID)
	if err != nil {
		return nil, err
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
	if err := s.creds.Set(hex.EncodeToString(cred.ID), stored); err != nil {
		return nil, rp.Infra("save credential", err)
	}
	out := *stored
	return &out, nil
}

// UpdateSignCount applies a compare-and-set counter update.
func (s *CredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, prev, next uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.get(credentialID)
	if err != nil {
		return rp.NewError("update sign count", rp.ErrCredentialUnknown)
	}
	if stored.SignCount != prev {
		return rp.NewError("update sign count", rp.ErrCounterConflict)
	}

	stored.SignCount = next
	stored.LastUsedAt = usedAt
	if err := s.creds.Set(hex.EncodeToString(credentialID), stored); err != nil {
		return rp.Infra("update sign count", err)
	}
	return nil
}

// MarkCloneWarning flags the credential for review.
func (s *CredentialStore) MarkCloneWarning(ctx context.Context, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.get(credentialID)
	if err != nil {
		return err
	}
	stored.CloneWarning = true
	if err := s.creds.Set(hex.EncodeToString(credentialID), stored); err != nil {
		return rp.Infra("mark clone warning", err)
	}
	return nil
}

// Revoke terminally disables the credential. Idempotent.
func (s *CredentialStore) Revoke(ctx context.Context, credentialID []byte, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.get(credentialID)
	if err != nil {
		return err
	}
	if stored.Revoked {
		return nil
	}
	stored.Revoked = true
	stored.RevokedAt = time.Now().UTC()
	stored.RevokedBy = actor
	if err := s.creds.Set(hex.EncodeToString(credentialID), stored); err != nil {
		return rp.Infra("revoke credential", err)
	}
	return nil
}

// Count returns the number of stored credentials.
func (s *CredentialStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Count()
}

// Close flushes and closes the underlying databases.
func (s *CredentialStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.creds.Close()
	if cerr := s.index.Close(); err == nil {
		err = cerr
	}
	return err
}
