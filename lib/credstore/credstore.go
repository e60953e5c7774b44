// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"golang.org/x/sys/unix"
)

const (
	sessionFile  = "session.age"
	identityFile = "identity.key"
	lockFile     = ".lock"
)

// Store keeps the session secret sealed in a directory. It satisfies
// provider.CredentialStore.
type Store struct {
	directory string
	logger    *slog.Logger
}

// Open prepares directory (creating it with mode 0700) and returns a
// Store rooted there. No key material is generated until the first
// Save.
func Open(directory string, logger *slog.Logger) (*Store, error) {
	if directory == "" {
		return nil, fmt.Errorf("credstore: directory is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("credstore: creating %s: %w", directory, err)
	}
	return &Store{directory: directory, logger: logger}, nil
}

// Path returns the sealed session file location.
func (s *Store) Path() string {
	return filepath.Join(s.directory, sessionFile)
}

// Load returns the stored secret, or "" when nothing is stored.
func (s *Store) Load() (string, error) {
	unlock, err := s.lock(unix.LOCK_SH)
	if err != nil {
		return "", err
	}
	defer unlock()

	sealed, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credstore: reading session: %w", err)
	}

	identity, err := s.readIdentity()
	if err != nil {
		return "", err
	}
	if identity == nil {
		return "", fmt.Errorf("credstore: %s exists but %s is missing", sessionFile, identityFile)
	}

	reader, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return "", fmt.Errorf("credstore: decrypting session: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("credstore: decrypting session: %w", err)
	}
	return string(plaintext), nil
}

// Save seals secret, replacing any stored value. An empty secret is
// the same as Clear.
func (s *Store) Save(secret string) error {
	if secret == "" {
		return s.Clear()
	}

	unlock, err := s.lock(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer unlock()

	identity, err := s.readIdentity()
	if err != nil {
		return err
	}
	if identity == nil {
		identity, err = age.GenerateX25519Identity()
		if err != nil {
			return fmt.Errorf("credstore: generating identity: %w", err)
		}
		if err := writeFileAtomic(filepath.Join(s.directory, identityFile), []byte(identity.String()+"\n")); err != nil {
			return err
		}
		s.logger.Info("generated credential key", "path", filepath.Join(s.directory, identityFile))
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, identity.Recipient())
	if err != nil {
		return fmt.Errorf("credstore: encrypting session: %w", err)
	}
	if _, err := io.WriteString(writer, secret); err != nil {
		return fmt.Errorf("credstore: encrypting session: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("credstore: encrypting session: %w", err)
	}

	return writeFileAtomic(s.Path(), sealed.Bytes())
}

// Clear removes the stored secret. The key is kept for the next Save.
func (s *Store) Clear() error {
	unlock, err := s.lock(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credstore: removing session: %w", err)
	}
	return nil
}

// readIdentity returns nil, nil when no key has been generated yet.
func (s *Store) readIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(filepath.Join(s.directory, identityFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: reading identity: %w", err)
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("credstore: parsing identity: %w", err)
	}
	return identity, nil
}

// lock takes an advisory flock on the directory's lock file so that
// concurrent crowdsync processes do not interleave writes.
func (s *Store) lock(how int) (func(), error) {
	file, err := os.OpenFile(filepath.Join(s.directory, lockFile), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("credstore: opening lock: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), how); err != nil {
		file.Close()
		return nil, fmt.Errorf("credstore: locking: %w", err)
	}
	return func() {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
	}, nil
}

func writeFileAtomic(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("credstore: writing %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", path, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("credstore: replacing %s: %w", path, err)
	}
	return nil
}
