// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func documentsPath(databaseID, collectionID string) string {
	return "/databases/" + url.PathEscape(databaseID) +
		"/collections/" + url.PathEscape(collectionID) + "/documents"
}

// ListDocuments returns the documents of a collection matching queries.
func (c *Client) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...Query) (*DocumentList, error) {
	var values url.Values
	if len(queries) > 0 {
		values = url.Values{}
		for _, query := range queries {
			values.Add("queries[]", string(query))
		}
	}

	body, err := c.doRequest(ctx, http.MethodGet, documentsPath(databaseID, collectionID), nil, values)
	if err != nil {
		return nil, fmt.Errorf("provider: list documents in %s failed: %w", collectionID, err)
	}

	var list DocumentList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("provider: failed to parse document list: %w", err)
	}
	return &list, nil
}

// GetDocument fetches one document by ID.
func (c *Client) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (*Document, error) {
	path := documentsPath(databaseID, collectionID) + "/" + url.PathEscape(documentID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: get document %s failed: %w", documentID, err)
	}

	var document Document
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("provider: failed to parse document: %w", err)
	}
	return &document, nil
}

// CreateDocument stores data under documentID. A second create with
// the same ID fails with ErrTypeDocumentAlreadyExists.
func (c *Client) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (*Document, error) {
	request := map[string]any{
		"documentId": documentID,
		"data":       data,
	}
	body, err := c.doRequest(ctx, http.MethodPost, documentsPath(databaseID, collectionID), request, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: create document in %s failed: %w", collectionID, err)
	}

	var document Document
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("provider: failed to parse document: %w", err)
	}
	c.logger.Debug("document created", "collection", collectionID, "document_id", document.ID)
	return &document, nil
}

// UpdateDocument merges data into an existing document.
func (c *Client) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (*Document, error) {
	path := documentsPath(databaseID, collectionID) + "/" + url.PathEscape(documentID)
	body, err := c.doRequest(ctx, http.MethodPatch, path, map[string]any{"data": data}, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: update document %s failed: %w", documentID, err)
	}

	var document Document
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("provider: failed to parse document: %w", err)
	}
	return &document, nil
}
