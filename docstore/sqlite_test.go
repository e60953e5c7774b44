// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/lib/codec"
)

func TestSQLitePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "documents.db")

	first, err := docstore.OpenSQLite(docstore.SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	created, err := first.Create(ctx, docstore.CollectionComments, "", map[string]any{"content": "still there"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first.Close()

	second, err := docstore.OpenSQLite(docstore.SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	fetched, err := second.Get(ctx, docstore.CollectionComments, created.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if fetched.Fields["content"] != "still there" {
		t.Errorf("content = %v", fetched.Fields["content"])
	}
}

func TestSQLiteRawBodyIsCBOR(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.OpenSQLite(docstore.SQLiteConfig{Path: filepath.Join(t.TempDir(), "documents.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	created, _ := store.Create(ctx, docstore.CollectionReports, "r1", map[string]any{"severity": "high"})
	body, err := store.RawBody(ctx, docstore.CollectionReports, created.ID)
	if err != nil {
		t.Fatalf("RawBody: %v", err)
	}
	diagnostic, err := codec.Diagnose(body)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"severity"`) || !strings.Contains(diagnostic, `"high"`) {
		t.Errorf("diagnostic = %s", diagnostic)
	}

	if _, err := store.RawBody(ctx, docstore.CollectionReports, "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("RawBody(missing) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteCollectionsAreSeparate(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.OpenSQLite(docstore.SQLiteConfig{Path: filepath.Join(t.TempDir(), "documents.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	if _, err := store.Create(ctx, docstore.CollectionReports, "shared", map[string]any{}); err != nil {
		t.Fatalf("Create report: %v", err)
	}
	if _, err := store.Create(ctx, docstore.CollectionComments, "shared", map[string]any{}); err != nil {
		t.Errorf("same ID in another collection: %v", err)
	}
}
