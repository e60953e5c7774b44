// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/crowdsync/crowdsync/lib/clock"
	"github.com/crowdsync/crowdsync/lib/testutil"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/provider/providertest"
	"github.com/crowdsync/crowdsync/session"
)

const callbackURL = "http://127.0.0.1:8787/auth/callback"

func newStore(t *testing.T, account session.Account, options ...func(*session.Config)) *session.Store {
	t.Helper()
	cfg := session.Config{Account: account, CallbackURL: callbackURL}
	for _, option := range options {
		option(&cfg)
	}
	store, err := session.New(cfg)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNewRequiresAccountAndCallback(t *testing.T) {
	server := providertest.NewServer(t)
	if _, err := session.New(session.Config{CallbackURL: callbackURL}); err == nil {
		t.Error("New accepted a nil Account")
	}
	if _, err := session.New(session.Config{Account: server.NewClient(t)}); err == nil {
		t.Error("New accepted an empty CallbackURL")
	}
}

func TestCheckSessionSignedOut(t *testing.T) {
	server := providertest.NewServer(t)
	store := newStore(t, server.NewClient(t))

	if !store.Loading() {
		t.Error("new store is not loading")
	}
	store.CheckSession(context.Background())

	if store.Loading() {
		t.Error("still loading after CheckSession")
	}
	if _, signedIn := store.Current(); signedIn {
		t.Error("signed in without a session")
	}
	if calls := server.Calls(providertest.RouteAccount); calls != 0 {
		t.Errorf("account calls = %d, want 0 without a stored secret", calls)
	}
}

func TestCheckSessionSignedIn(t *testing.T) {
	server := providertest.NewServer(t)
	client, userID := server.SignedInClient(t, "asha@example.com", "Asha")
	store := newStore(t, client)

	store.CheckSession(context.Background())

	identity, signedIn := store.Current()
	if !signedIn {
		t.Fatal("not signed in")
	}
	if identity.ID != userID || identity.Name != "Asha" || identity.Email != "asha@example.com" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestCheckSessionAbsorbsServerErrors(t *testing.T) {
	server := providertest.NewServer(t)
	client, _ := server.SignedInClient(t, testutil.UniqueEmail("flaky"), "")
	store := newStore(t, client)
	store.CheckSession(context.Background())

	server.FailNext(providertest.RouteAccount, &provider.Error{Code: 500, Type: "general_unknown", Message: "boom"})
	store.CheckSession(context.Background())

	if _, signedIn := store.Current(); signedIn {
		t.Error("identity kept after a failed check")
	}
}

func TestSendMagicLink(t *testing.T) {
	server := providertest.NewServer(t)
	store := newStore(t, server.NewClient(t))
	email := testutil.UniqueEmail("link")

	if err := store.SendMagicLink(context.Background(), "  "+email+" "); err != nil {
		t.Fatalf("SendMagicLink: %v", err)
	}
	link, ok := server.LastLink(email)
	if !ok {
		t.Fatal("no link sent")
	}
	if !strings.HasPrefix(link, callbackURL+"?") {
		t.Errorf("link %q does not target the callback URL", link)
	}
	userID, secret := server.LastLinkParams(t, email)
	if userID == "" || secret == "" {
		t.Errorf("link is missing userId or secret: %q", link)
	}
}

func TestSendMagicLinkRejectsBadAddress(t *testing.T) {
	server := providertest.NewServer(t)
	store := newStore(t, server.NewClient(t))

	for _, email := range []string{"", "not-an-address", "@example.com"} {
		if err := store.SendMagicLink(context.Background(), email); !errors.Is(err, session.ErrInvalidEmail) {
			t.Errorf("SendMagicLink(%q) error = %v, want ErrInvalidEmail", email, err)
		}
	}
	if calls := server.Calls(providertest.RouteMagicURLToken); calls != 0 {
		t.Errorf("token calls = %d, want 0", calls)
	}
}

func TestSendMagicLinkPropagatesProviderErrors(t *testing.T) {
	server := providertest.NewServer(t)
	store := newStore(t, server.NewClient(t))
	server.FailNext(providertest.RouteMagicURLToken, &provider.Error{
		Code: http.StatusTooManyRequests, Type: provider.ErrTypeRateLimited, Message: "slow down",
	})

	err := store.SendMagicLink(context.Background(), testutil.UniqueEmail("limited"))
	if !provider.IsErrorType(err, provider.ErrTypeRateLimited) {
		t.Errorf("SendMagicLink error = %v, want %s", err, provider.ErrTypeRateLimited)
	}
}

func TestLogout(t *testing.T) {
	server := providertest.NewServer(t)
	client, _ := server.SignedInClient(t, testutil.UniqueEmail("leaving"), "")
	store := newStore(t, client)
	store.CheckSession(context.Background())

	if err := store.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, signedIn := store.Current(); signedIn {
		t.Error("still signed in after Logout")
	}
	if hasSession, _ := client.HasSession(); hasSession {
		t.Error("client still holds a session secret")
	}
}

func TestLogoutFailureKeepsIdentity(t *testing.T) {
	server := providertest.NewServer(t)
	client, _ := server.SignedInClient(t, testutil.UniqueEmail("stuck"), "")
	store := newStore(t, client)
	store.CheckSession(context.Background())
	server.FailNext(providertest.RouteDeleteSession, &provider.Error{Code: 503, Type: "general_server_error", Message: "down"})

	if err := store.Logout(context.Background()); err == nil {
		t.Fatal("Logout succeeded despite the backend failing")
	}
	if _, signedIn := store.Current(); !signedIn {
		t.Error("identity dropped after a failed logout")
	}
}

func TestRevalidate(t *testing.T) {
	server := providertest.NewServer(t)

	signedOut := newStore(t, server.NewClient(t))
	if _, err := signedOut.Revalidate(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("Revalidate signed out = %v, want ErrNoSession", err)
	}

	client, userID := server.SignedInClient(t, testutil.UniqueEmail("writer"), "Before")
	store := newStore(t, client)
	store.CheckSession(context.Background())
	server.SetName(userID, "After")

	identity, err := store.Revalidate(context.Background())
	if err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	if identity.Name != "After" {
		t.Errorf("Revalidate name = %q, want fresh value", identity.Name)
	}
	if cached, _ := store.Current(); cached.Name != "After" {
		t.Errorf("cached name = %q, want updated", cached.Name)
	}
}

func TestRevalidateTransientFailureKeepsIdentity(t *testing.T) {
	server := providertest.NewServer(t)
	client, userID := server.SignedInClient(t, testutil.UniqueEmail("patient"), "Patient")
	store := newStore(t, client)
	store.CheckSession(context.Background())
	server.FailNext(providertest.RouteAccount, &provider.Error{Code: 503, Type: "general_server_error", Message: "down"})

	_, err := store.Revalidate(context.Background())
	if err == nil {
		t.Fatal("Revalidate succeeded despite the backend failing")
	}
	if errors.Is(err, session.ErrNoSession) {
		t.Errorf("Revalidate = %v, want a transient error, not ErrNoSession", err)
	}
	if provider.StatusCode(err) != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 in the chain", provider.StatusCode(err))
	}
	identity, signedIn := store.Current()
	if !signedIn || identity.ID != userID {
		t.Errorf("Current() = %+v, %v after a 503, want the cached identity", identity, signedIn)
	}

	// The next attempt goes through.
	if _, err := store.Revalidate(context.Background()); err != nil {
		t.Errorf("Revalidate after recovery: %v", err)
	}
}

func TestSubscribeDeliversLatestState(t *testing.T) {
	server := providertest.NewServer(t)
	client, _ := server.SignedInClient(t, testutil.UniqueEmail("watcher"), "Watcher")
	store := newStore(t, client)

	states, cancel := store.Subscribe()
	initial := testutil.RequireReceive(t, states, time.Second, "initial state")
	if !initial.Loading {
		t.Errorf("initial state = %+v, want loading", initial)
	}

	store.CheckSession(context.Background())
	signedIn := testutil.RequireReceive(t, states, time.Second, "signed-in state")
	if !signedIn.SignedIn || signedIn.Identity.Name != "Watcher" {
		t.Errorf("state = %+v", signedIn)
	}

	// Two changes without reading: only the last one is buffered.
	store.Logout(context.Background())
	store.CheckSession(context.Background())
	latest := testutil.RequireReceive(t, states, time.Second, "latest state")
	if latest.SignedIn || latest.Loading {
		t.Errorf("latest = %+v, want signed out", latest)
	}

	cancel()
	testutil.RequireClosed(t, states, time.Second, "channel after cancel")
	cancel()
}

func TestStartRefreshesOnInterval(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	server := providertest.NewServer(t)
	client, userID := server.SignedInClient(t, testutil.UniqueEmail("refresh"), "Old")
	store := newStore(t, client, func(cfg *session.Config) {
		cfg.Clock = fake
		cfg.RefreshInterval = time.Minute
	})

	store.Start(context.Background())
	states, cancel := store.Subscribe()
	defer cancel()
	testutil.RequireReceive(t, states, time.Second, "state after Start")

	server.SetName(userID, "New")
	fake.Advance(time.Minute)

	refreshed := testutil.RequireReceive(t, states, 5*time.Second, "state after refresh")
	if refreshed.Identity.Name != "New" {
		t.Errorf("refreshed name = %q, want New", refreshed.Identity.Name)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	server := providertest.NewServer(t)
	store := newStore(t, server.NewClient(t), func(cfg *session.Config) {
		cfg.Clock = clock.Fake(time.Now())
		cfg.RefreshInterval = time.Minute
	})
	store.Start(context.Background())
	states, _ := store.Subscribe()
	testutil.RequireReceive(t, states, time.Second, "initial state")

	store.Close()
	testutil.RequireClosed(t, states, time.Second, "subscriber after Close")
	store.Close()

	late, _ := store.Subscribe()
	testutil.RequireClosed(t, late, time.Second, "subscription after Close")
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		identity session.Identity
		want     string
	}{
		{session.Identity{Name: "Asha Rao", Email: "asha@example.com"}, "Asha Rao"},
		{session.Identity{Name: "  ", Email: "ravi.k@example.com"}, "ravi.k"},
		{session.Identity{Email: "noname@example.com"}, "noname"},
		{session.Identity{}, ""},
	}
	for _, test := range tests {
		if got := test.identity.DisplayName(); got != test.want {
			t.Errorf("%+v.DisplayName() = %q, want %q", test.identity, got, test.want)
		}
	}
}
