// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logical collection names. Backends map them to their own IDs.
const (
	CollectionProfiles   = "profiles"
	CollectionReports    = "reports"
	CollectionDuplicates = "duplicates"
	CollectionComments   = "comments"
)

// Collections lists every logical collection.
var Collections = []string{CollectionProfiles, CollectionReports, CollectionDuplicates, CollectionComments}

var (
	// ErrConflict is returned by Create when the ID is taken.
	ErrConflict = errors.New("docstore: document already exists")
	// ErrNotFound is returned by Get and Update for unknown IDs.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrUnauthenticated is returned when the backend rejects the
	// session.
	ErrUnauthenticated = errors.New("docstore: not signed in")
)

// Document is a stored record with server-assigned timestamps.
type Document struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Fields     map[string]any
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value string
}

// Query selects documents from one collection. Filters are ANDed.
type Query struct {
	Filters []Filter
	// NewestFirst orders by creation time descending; otherwise
	// oldest first.
	NewestFirst bool
	// Limit caps the page. Zero means the backend default.
	Limit int
}

// Page is the result of List. Total counts all matches, which may
// exceed len(Documents) when Limit applies.
type Page struct {
	Documents []Document
	Total     int
}

// Store is the document persistence the repositories depend on.
type Store interface {
	List(ctx context.Context, collection string, query Query) (Page, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create stores fields under id. An empty id asks the store to
	// generate one.
	Create(ctx context.Context, collection, id string, fields map[string]any) (Document, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) (Document, error)
}

// NewID returns a fresh document ID: 32 lowercase hex characters,
// inside the backend's 36 character limit.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Where is shorthand for a single-filter equality query.
func Where(field, value string) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}
