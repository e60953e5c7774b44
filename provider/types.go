// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Header names and values sent to the backend.
const (
	HeaderProject         = "X-Appwrite-Project"
	HeaderSession         = "X-Appwrite-Session"
	HeaderResponseFormat  = "X-Appwrite-Response-Format"
	HeaderFallbackCookies = "X-Fallback-Cookies"

	ResponseFormat = "1.5.0"
)

// User is the account behind the current session.
type User struct {
	ID                string `json:"$id"`
	CreatedAt         string `json:"$createdAt,omitempty"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	EmailVerification bool   `json:"emailVerification"`
	Status            bool   `json:"status"`
}

// Token is a one-time secret issued for magic links and email
// verification. The secret itself is only delivered by email.
type Token struct {
	ID        string `json:"$id"`
	CreatedAt string `json:"$createdAt,omitempty"`
	UserID    string `json:"userId"`
	Secret    string `json:"secret,omitempty"`
	Expire    string `json:"expire,omitempty"`
}

// Session is an authenticated session.
type Session struct {
	ID        string `json:"$id"`
	CreatedAt string `json:"$createdAt,omitempty"`
	UserID    string `json:"userId"`
	Expire    string `json:"expire,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Current   bool   `json:"current"`
	// Secret is only populated for requests made with an API key.
	Secret string `json:"secret,omitempty"`
}

// Document is a stored record. Attributes prefixed with "$" are
// system metadata and are split out of Data on decode.
type Document struct {
	ID           string
	CollectionID string
	DatabaseID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Data         map[string]any
}

// UnmarshalJSON splits system attributes from user data.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Data = make(map[string]any, len(raw))
	for key, value := range raw {
		if !strings.HasPrefix(key, "$") {
			d.Data[key] = value
			continue
		}
		text, _ := value.(string)
		switch key {
		case "$id":
			d.ID = text
		case "$collectionId":
			d.CollectionID = text
		case "$databaseId":
			d.DatabaseID = text
		case "$createdAt", "$updatedAt":
			if text == "" {
				continue
			}
			parsed, err := time.Parse(time.RFC3339Nano, text)
			if err != nil {
				return fmt.Errorf("provider: document %s: %w", key, err)
			}
			if key == "$createdAt" {
				d.CreatedAt = parsed
			} else {
				d.UpdatedAt = parsed
			}
		}
	}
	return nil
}

// MarshalJSON produces the wire shape, system attributes included.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Data)+5)
	for key, value := range d.Data {
		out[key] = value
	}
	out["$id"] = d.ID
	out["$collectionId"] = d.CollectionID
	out["$databaseId"] = d.DatabaseID
	if !d.CreatedAt.IsZero() {
		out["$createdAt"] = d.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !d.UpdatedAt.IsZero() {
		out["$updatedAt"] = d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// DocumentList is one page of a document listing. Total counts every
// match, not only the returned page.
type DocumentList struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}
