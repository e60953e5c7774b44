// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import "sync"

// CredentialStore persists the session secret. Load returns "" with a
// nil error when no session has been stored.
type CredentialStore interface {
	Load() (string, error)
	Save(secret string) error
	Clear() error
}

// MemoryCredentials keeps the secret for the life of the process.
type MemoryCredentials struct {
	mu     sync.Mutex
	secret string
}

func (m *MemoryCredentials) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secret, nil
}

func (m *MemoryCredentials) Save(secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = secret
	return nil
}

func (m *MemoryCredentials) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = ""
	return nil
}
