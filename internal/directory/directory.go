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

// Package directory provides the built-in user directory for the
// standalone server. Production deployments replace it with an
// implementation backed by the host identity store.
package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jeremyhahn/go-passkey/pkg/rp"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Entry describes one account to seed the directory with.
type Entry struct {
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
}

// Static is an in-memory user directory seeded from configuration.
// User handles derive deterministically from the username, so stored
// credentials keep matching their owner across restarts.
type Static struct {
	mu    sync.RWMutex
	users map[string]*rp.User
}

// NewStatic creates a directory containing the given entries.
func NewStatic(entries ...Entry) *Static {
	s := &Static{users: make(map[string]*rp.User)}
	for _, entry := range entries {
		s.Add(entry.Username, entry.DisplayName)
	}
	return s
}

// LoadFile reads directory entries from a YAML file containing a list
// of {username, display_name} items.
func LoadFile(path string) ([]Entry, error) {
	// #nosec G304 - Users file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	return entries, nil
}

// Add registers an account. An empty display name falls back to the
// username. Re-adding an existing username keeps its handle.
func (s *Static) Add(username, displayName string) {
	if username == "" {
		return
	}
	if displayName == "" {
		displayName = username
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[username]; ok {
		existing.DisplayName = displayName
		return
	}
	s.users[username] = &rp.User{
		Handle:      handleFor(username),
		Name:        username,
		DisplayName: displayName,
	}
}

// LookupByUsername resolves a username or reports rp.ErrUserNotFound.
func (s *Static) LookupByUsername(ctx context.Context, name string) (*rp.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[name]
	if !ok {
		return nil, rp.NewError("lookup user", rp.ErrUserNotFound)
	}

	clone := *user
	return &clone, nil
}

// Count returns the number of registered accounts.
func (s *Static) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// handleFor derives a stable 16-byte opaque handle from the username.
// The digest is domain-separated so handles never collide with other
// blake2b uses in the codebase.
func handleFor(username string) []byte {
	sum := blake2b.Sum256([]byte("passkey-user-handle:" + username))
	return sum[:16]
}
