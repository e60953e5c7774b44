// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package providertest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/crowdsync/crowdsync/lib/clock"
	"github.com/crowdsync/crowdsync/lib/testutil"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/provider/providertest"
)

const callbackURL = "http://127.0.0.1:8787/auth/callback"

func TestMagicLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := providertest.NewServer(t)
	client := server.NewClient(t)
	email := testutil.UniqueEmail("reporter")

	if _, err := client.CreateMagicURLToken(ctx, "candidate-id", email, callbackURL); err != nil {
		t.Fatalf("CreateMagicURLToken: %v", err)
	}
	userID, secret := server.LastLinkParams(t, email)
	if userID != "candidate-id" {
		t.Errorf("userId = %q, want the candidate ID for a new account", userID)
	}

	if _, err := client.UpdateMagicURLSession(ctx, userID, secret); err != nil {
		t.Fatalf("UpdateMagicURLSession: %v", err)
	}
	user, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if user.Email != email || !user.EmailVerification {
		t.Errorf("user = %+v, want verified %s", user, email)
	}

	// The secret is single-use.
	_, err = client.UpdateMagicURLSession(ctx, userID, secret)
	if !provider.IsErrorType(err, provider.ErrTypeUserInvalidToken) {
		t.Errorf("second redemption error = %v, want %s", err, provider.ErrTypeUserInvalidToken)
	}
}

func TestExistingAccountKeepsID(t *testing.T) {
	ctx := context.Background()
	server := providertest.NewServer(t)
	client := server.NewClient(t)
	email := testutil.UniqueEmail("repeat")

	client.CreateMagicURLToken(ctx, "first", email, callbackURL)
	client.CreateMagicURLToken(ctx, "second", email, callbackURL)

	userID, _ := server.LastLinkParams(t, email)
	if userID != "first" {
		t.Errorf("userId = %q, want %q", userID, "first")
	}
}

func TestTokenExpires(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	server := providertest.NewServer(t, providertest.WithClock(fake))
	client := server.NewClient(t)
	email := testutil.UniqueEmail("late")

	client.CreateMagicURLToken(ctx, "u", email, callbackURL)
	userID, secret := server.LastLinkParams(t, email)
	fake.Advance(providertest.TokenLifetime + time.Second)

	if _, err := client.CreateSession(ctx, userID, secret); provider.StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("expired redemption error = %v, want 401", err)
	}
}

func TestDocumentsRequireSession(t *testing.T) {
	server := providertest.NewServer(t)
	client := server.NewClient(t)

	_, err := client.ListDocuments(context.Background(), "db", "posts")
	if !provider.IsErrorType(err, provider.ErrTypeUnauthorized) {
		t.Errorf("ListDocuments without session = %v, want %s", err, provider.ErrTypeUnauthorized)
	}
}

func signedInClient(t *testing.T, server *providertest.Server) *provider.Client {
	t.Helper()
	client, _ := server.SignedInClient(t, testutil.UniqueEmail("user"), "")
	return client
}

func TestDocumentQueries(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	server := providertest.NewServer(t, providertest.WithClock(fake))
	client := signedInClient(t, server)

	for i, pincode := range []string{"560001", "400001", "560001", "560001"} {
		_, err := client.CreateDocument(ctx, "db", "posts", "", map[string]any{"pincode": pincode, "n": i})
		if err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
		// The last two share a timestamp; insertion order breaks the tie.
		if i < 2 {
			fake.Advance(time.Second)
		}
	}

	list, err := client.ListDocuments(ctx, "db", "posts",
		provider.Equal("pincode", "560001"), provider.OrderDesc("$createdAt"), provider.Limit(2))
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if list.Total != 3 {
		t.Errorf("Total = %d, want 3", list.Total)
	}
	if len(list.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(list.Documents))
	}
	if first := list.Documents[0].Data["n"]; first != float64(3) {
		t.Errorf("first document n = %v, want 3", first)
	}
	if second := list.Documents[1].Data["n"]; second != float64(2) {
		t.Errorf("second document n = %v, want 2", second)
	}
}

func TestCreateDocumentConflict(t *testing.T) {
	ctx := context.Background()
	server := providertest.NewServer(t)
	client := signedInClient(t, server)

	if _, err := client.CreateDocument(ctx, "db", "duplicates", "fixed", map[string]any{"postId": "p"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	_, err := client.CreateDocument(ctx, "db", "duplicates", "fixed", map[string]any{"postId": "p"})
	if !provider.IsErrorType(err, provider.ErrTypeDocumentAlreadyExists) {
		t.Errorf("second create = %v, want %s", err, provider.ErrTypeDocumentAlreadyExists)
	}
	if got := len(server.Documents("db", "duplicates")); got != 1 {
		t.Errorf("stored %d documents, want 1", got)
	}
}

func TestUpdateDocumentMerges(t *testing.T) {
	ctx := context.Background()
	server := providertest.NewServer(t)
	client := signedInClient(t, server)

	created, err := client.CreateDocument(ctx, "db", "profiles", "", map[string]any{"userId": "u", "pincode": ""})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	updated, err := client.UpdateDocument(ctx, "db", "profiles", created.ID, map[string]any{"pincode": "560001"})
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if updated.Data["userId"] != "u" || updated.Data["pincode"] != "560001" {
		t.Errorf("updated data = %v", updated.Data)
	}

	fetched, err := client.GetDocument(ctx, "db", "profiles", created.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if fetched.Data["pincode"] != "560001" {
		t.Errorf("fetched pincode = %v", fetched.Data["pincode"])
	}

	_, err = client.GetDocument(ctx, "db", "profiles", "missing")
	if !provider.IsErrorType(err, provider.ErrTypeDocumentNotFound) {
		t.Errorf("GetDocument(missing) = %v, want %s", err, provider.ErrTypeDocumentNotFound)
	}
}

func TestFailNextAndCalls(t *testing.T) {
	server := providertest.NewServer(t)
	client := server.NewClient(t)
	server.FailNext(providertest.RouteVersion, &provider.Error{Code: 503, Type: "general_server_error", Message: "down"})

	if _, err := client.ServerVersion(context.Background()); provider.StatusCode(err) != 503 {
		t.Errorf("first call = %v, want injected 503", err)
	}
	version, err := client.ServerVersion(context.Background())
	if err != nil || version == "" {
		t.Errorf("second call = %q, %v", version, err)
	}
	if calls := server.Calls(providertest.RouteVersion); calls != 2 {
		t.Errorf("Calls = %d, want 2", calls)
	}
}

func TestEmailVerification(t *testing.T) {
	ctx := context.Background()
	server := providertest.NewServer(t)
	email := testutil.UniqueEmail("verify")
	_, secret := server.SignIn(email, "")
	credentials := &provider.MemoryCredentials{}
	credentials.Save(secret)
	client, _ := provider.NewClient(provider.ClientConfig{
		Endpoint: server.Endpoint(), ProjectID: server.ProjectID, Credentials: credentials,
	})

	if _, err := client.CreateVerification(ctx, "http://127.0.0.1:8787/verify-email"); err != nil {
		t.Fatalf("CreateVerification: %v", err)
	}
	userID, verificationSecret := server.LastLinkParams(t, email)
	if _, err := client.UpdateVerification(ctx, userID, verificationSecret); err != nil {
		t.Fatalf("UpdateVerification: %v", err)
	}
	user, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !user.EmailVerification {
		t.Error("email not verified")
	}
}
