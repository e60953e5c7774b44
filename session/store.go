// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crowdsync/crowdsync/lib/clock"
	"github.com/crowdsync/crowdsync/provider"
)

var (
	// ErrNoSession is returned by Revalidate when nobody is signed in.
	ErrNoSession = errors.New("session: not signed in")
	// ErrInvalidEmail is returned by SendMagicLink before any backend
	// call when the address does not parse.
	ErrInvalidEmail = errors.New("session: invalid email address")
)

// Account is the slice of the backend account API the store needs.
// *provider.Client satisfies it.
type Account interface {
	Get(ctx context.Context) (*provider.User, error)
	CreateMagicURLToken(ctx context.Context, userID, email, redirectURL string) (*provider.Token, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Config holds the dependencies of a Store.
type Config struct {
	Account Account
	// CallbackURL is embedded in every magic link.
	CallbackURL string
	// Clock drives the refresh ticker. Defaults to the real clock.
	Clock clock.Clock
	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// RefreshInterval re-runs CheckSession periodically after Start.
	// Zero disables refreshing.
	RefreshInterval time.Duration
}

// Store caches the signed-in identity. It is the only writer of that
// identity; everything else reads it through Current, Revalidate, or
// Subscribe.
type Store struct {
	account         Account
	callbackURL     string
	clock           clock.Clock
	logger          *slog.Logger
	refreshInterval time.Duration

	mu          sync.Mutex
	identity    Identity
	signedIn    bool
	loading     bool
	subscribers map[int]chan State
	nextID      int
	stop        chan struct{}
	done        chan struct{}
	closed      bool
}

// New validates cfg and returns a Store in the loading state. Call
// Start to run the first session check.
func New(cfg Config) (*Store, error) {
	if cfg.Account == nil {
		return nil, fmt.Errorf("session: Account is required")
	}
	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("session: CallbackURL is required")
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		account:         cfg.Account,
		callbackURL:     cfg.CallbackURL,
		clock:           timeSource,
		logger:          logger,
		refreshInterval: cfg.RefreshInterval,
		loading:         true,
		subscribers:     make(map[int]chan State),
	}, nil
}

// Start runs the first session check and, when RefreshInterval is
// set, keeps re-checking in the background until Close or ctx ends.
func (s *Store) Start(ctx context.Context) {
	s.CheckSession(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshInterval <= 0 || s.stop != nil || s.closed {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.refreshInterval)
	go s.refreshLoop(ctx, ticker, s.stop, s.done)
}

func (s *Store) refreshLoop(ctx context.Context, ticker *clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.CheckSession(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close stops background refreshing and closes subscriber channels.
// It is safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop, done := s.stop, s.done
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// CheckSession asks the backend who is signed in. Failure of any kind
// means "signed out"; it is logged, never returned.
func (s *Store) CheckSession(ctx context.Context) {
	user, err := s.account.Get(ctx)
	if err != nil {
		if provider.StatusCode(err) != http.StatusUnauthorized {
			s.logger.Warn("session check failed", provider.LogAttrs(err)...)
		}
		s.set(Identity{}, false)
		return
	}
	s.set(identityFromUser(user), true)
}

// SendMagicLink asks the backend to email a sign-in link to email.
func (s *Store) SendMagicLink(ctx context.Context, email string) error {
	address, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidEmail, email, err)
	}
	tokenID := strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := s.account.CreateMagicURLToken(ctx, tokenID, address.Address, s.callbackURL); err != nil {
		s.logger.Error("sending magic link failed", provider.LogAttrs(err)...)
		return fmt.Errorf("session: sending magic link: %w", err)
	}
	s.logger.Info("magic link sent", "email", address.Address)
	return nil
}

// Logout deletes the current session on the backend, then forgets the
// identity. On failure the identity is kept.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.account.DeleteSession(ctx, ""); err != nil {
		s.logger.Error("logout failed", provider.LogAttrs(err)...)
		return fmt.Errorf("session: logout: %w", err)
	}
	s.set(Identity{}, false)
	return nil
}

// Revalidate fetches the identity fresh from the backend. Writes call
// it first so they never run on a session that expired since the last
// check. Only a rejected session signs the user out; any other failure
// leaves the cached identity in place.
func (s *Store) Revalidate(ctx context.Context) (Identity, error) {
	user, err := s.account.Get(ctx)
	if err != nil {
		if provider.StatusCode(err) == http.StatusUnauthorized {
			s.set(Identity{}, false)
			return Identity{}, ErrNoSession
		}
		s.logger.Warn("session revalidation failed", provider.LogAttrs(err)...)
		return Identity{}, fmt.Errorf("session: revalidate: %w", err)
	}
	identity := identityFromUser(user)
	s.set(identity, true)
	return identity, nil
}

// Current returns the cached identity.
func (s *Store) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.signedIn
}

// Loading reports whether the first session check is still pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe returns a channel carrying the latest State. The channel
// holds one value; a slow reader sees only the most recent state. The
// current state is delivered immediately. cancel unsubscribes and
// closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	ch <- s.stateLocked()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existing, ok := s.subscribers[id]; ok {
				close(existing)
				delete(s.subscribers, id)
			}
		})
	}
	return ch, cancel
}

func (s *Store) set(identity Identity, signedIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.loading || s.signedIn != signedIn || s.identity != identity
	s.identity = identity
	s.signedIn = signedIn
	s.loading = false
	if !changed {
		return
	}
	state := s.stateLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

func (s *Store) stateLocked() State {
	return State{Identity: s.identity, SignedIn: s.signedIn, Loading: s.loading}
}
