// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/crowdsync/crowdsync/provider"
)

// DocumentsAPI is the slice of provider.Client used by Remote.
type DocumentsAPI interface {
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...provider.Query) (*provider.DocumentList, error)
	GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (*provider.Document, error)
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (*provider.Document, error)
	UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (*provider.Document, error)
}

// RemoteConfig configures a Remote store.
type RemoteConfig struct {
	API        DocumentsAPI
	DatabaseID string
	// Collections maps logical names (CollectionReports, ...) to
	// backend collection IDs. Every logical collection must be mapped.
	Collections map[string]string
	Logger      *slog.Logger
}

// Remote stores documents in the backend's databases API.
type Remote struct {
	api         DocumentsAPI
	databaseID  string
	collections map[string]string
	logger      *slog.Logger
}

// NewRemote validates cfg and returns a Remote.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("docstore: API is required")
	}
	if cfg.DatabaseID == "" {
		return nil, fmt.Errorf("docstore: DatabaseID is required")
	}
	for _, name := range Collections {
		if cfg.Collections[name] == "" {
			return nil, fmt.Errorf("docstore: no collection ID for %q", name)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Remote{
		api:         cfg.API,
		databaseID:  cfg.DatabaseID,
		collections: cfg.Collections,
		logger:      logger,
	}, nil
}

func (r *Remote) collectionID(collection string) (string, error) {
	id, ok := r.collections[collection]
	if !ok {
		return "", fmt.Errorf("docstore: unknown collection %q", collection)
	}
	return id, nil
}

func (r *Remote) List(ctx context.Context, collection string, query Query) (Page, error) {
	collectionID, err := r.collectionID(collection)
	if err != nil {
		return Page{}, err
	}

	queries := make([]provider.Query, 0, len(query.Filters)+2)
	for _, filter := range query.Filters {
		queries = append(queries, provider.Equal(filter.Field, filter.Value))
	}
	if query.NewestFirst {
		queries = append(queries, provider.OrderDesc("$createdAt"))
	} else {
		queries = append(queries, provider.OrderAsc("$createdAt"))
	}
	if query.Limit > 0 {
		queries = append(queries, provider.Limit(query.Limit))
	}

	list, err := r.api.ListDocuments(ctx, r.databaseID, collectionID, queries...)
	if err != nil {
		return Page{}, translate(err)
	}

	page := Page{Total: list.Total, Documents: make([]Document, 0, len(list.Documents))}
	for _, document := range list.Documents {
		page.Documents = append(page.Documents, fromProvider(collection, &document))
	}
	return page, nil
}

func (r *Remote) Get(ctx context.Context, collection, id string) (Document, error) {
	collectionID, err := r.collectionID(collection)
	if err != nil {
		return Document{}, err
	}
	document, err := r.api.GetDocument(ctx, r.databaseID, collectionID, id)
	if err != nil {
		return Document{}, translate(err)
	}
	return fromProvider(collection, document), nil
}

func (r *Remote) Create(ctx context.Context, collection, id string, fields map[string]any) (Document, error) {
	collectionID, err := r.collectionID(collection)
	if err != nil {
		return Document{}, err
	}
	if id == "" {
		id = NewID()
	}
	document, err := r.api.CreateDocument(ctx, r.databaseID, collectionID, id, fields)
	if err != nil {
		return Document{}, translate(err)
	}
	return fromProvider(collection, document), nil
}

func (r *Remote) Update(ctx context.Context, collection, id string, fields map[string]any) (Document, error) {
	collectionID, err := r.collectionID(collection)
	if err != nil {
		return Document{}, err
	}
	document, err := r.api.UpdateDocument(ctx, r.databaseID, collectionID, id, fields)
	if err != nil {
		return Document{}, translate(err)
	}
	return fromProvider(collection, document), nil
}

func fromProvider(collection string, document *provider.Document) Document {
	return Document{
		ID:         document.ID,
		Collection: collection,
		CreatedAt:  document.CreatedAt,
		UpdatedAt:  document.UpdatedAt,
		Fields:     document.Data,
	}
}

// translate maps backend errors onto the package sentinels while
// keeping the original in the chain for logging.
func translate(err error) error {
	switch {
	case provider.IsErrorType(err, provider.ErrTypeDocumentAlreadyExists):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case provider.IsErrorType(err, provider.ErrTypeDocumentNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case provider.StatusCode(err) == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return err
}
