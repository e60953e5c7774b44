// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/provider/providertest"
)

func TestNewRemoteRequiresEveryCollection(t *testing.T) {
	server := providertest.NewServer(t)
	partial := map[string]string{docstore.CollectionReports: "posts"}
	_, err := docstore.NewRemote(docstore.RemoteConfig{
		API:         server.NewClient(t),
		DatabaseID:  "crowdsync",
		Collections: partial,
	})
	if err == nil {
		t.Error("NewRemote accepted a partial collection map")
	}
}

func TestRemoteUsesBackendCollectionIDs(t *testing.T) {
	server := providertest.NewServer(t)
	client, _ := server.SignedInClient(t, "mapper@example.com", "")
	store, err := docstore.NewRemote(docstore.RemoteConfig{API: client, DatabaseID: "crowdsync", Collections: testCollections})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if _, err := store.Create(context.Background(), docstore.CollectionReports, "", map[string]any{"title": "x"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := len(server.Documents("crowdsync", "posts")); got != 1 {
		t.Errorf("posts collection holds %d documents, want 1", got)
	}
}

func TestRemoteUnauthenticated(t *testing.T) {
	server := providertest.NewServer(t)
	store, _ := docstore.NewRemote(docstore.RemoteConfig{
		API:         server.NewClient(t),
		DatabaseID:  "crowdsync",
		Collections: testCollections,
	})

	_, err := store.List(context.Background(), docstore.CollectionReports, docstore.Query{})
	if !errors.Is(err, docstore.ErrUnauthenticated) {
		t.Errorf("List without session = %v, want ErrUnauthenticated", err)
	}
	var providerErr *provider.Error
	if !errors.As(err, &providerErr) {
		t.Error("backend error dropped from the chain")
	}
}
