// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/locality"
)

// Document field names.
const (
	fieldType        = "type"
	fieldSubtype     = "subtype"
	fieldSeverity    = "severity"
	fieldPincode     = "pincode"
	fieldLocalities  = "localities"
	fieldDescription = "description"
	fieldUserID      = "user_id"
	fieldPostID      = "post_id"
	fieldContent     = "content"
)

// EncodeLocalities stores each locality as its own JSON string. The
// backend schema holds a list of strings, not a list of objects.
func EncodeLocalities(localities []locality.Locality) ([]string, error) {
	encoded := make([]string, 0, len(localities))
	for _, l := range localities {
		data, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("report: encoding locality %q: %w", l.Name, err)
		}
		encoded = append(encoded, string(data))
	}
	return encoded, nil
}

// DecodeLocalities reverses EncodeLocalities.
func DecodeLocalities(encoded []string) ([]locality.Locality, error) {
	localities := make([]locality.Locality, 0, len(encoded))
	for i, raw := range encoded {
		var l locality.Locality
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("report: decoding locality %d: %w", i, err)
		}
		localities = append(localities, l)
	}
	return localities, nil
}

// Deterministic IDs turn "at most one per key" into the store's
// primary key constraint. Each kind has its own derivation context.
const (
	duplicateMarkContext = "crowdsync 2026 duplicate mark id"
	profileContext       = "crowdsync 2026 profile id"
)

// DuplicateMarkID is the document ID of userID's mark on postID.
func DuplicateMarkID(userID, postID string) string {
	return derivedID(duplicateMarkContext, userID, postID)
}

// ProfileID is the document ID of userID's profile.
func ProfileID(userID string) string {
	return derivedID(profileContext, userID)
}

// derivedID hashes the NUL-separated parts and keeps 128 bits, which
// fits the backend's 36 character ID limit.
func derivedID(domain string, parts ...string) string {
	var material []byte
	for i, part := range parts {
		if i > 0 {
			material = append(material, 0)
		}
		material = append(material, part...)
	}
	var sum [16]byte
	blake3.DeriveKey(domain, material, sum[:])
	return hex.EncodeToString(sum[:])
}

// decodeFields maps a document onto a tagged struct. Both stores hand
// back generic maps (JSON numbers, CBOR integers); a JSON round trip
// normalizes them.
func decodeFields(document docstore.Document, target any) error {
	data, err := json.Marshal(document.Fields)
	if err != nil {
		return fmt.Errorf("report: re-encoding %s/%s: %w", document.Collection, document.ID, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("report: decoding %s/%s: %w", document.Collection, document.ID, err)
	}
	return nil
}

type reportFields struct {
	Type        Type     `json:"type"`
	Subtype     string   `json:"subtype"`
	Severity    Severity `json:"severity"`
	Pincode     string   `json:"pincode"`
	Localities  []string `json:"localities"`
	Description string   `json:"description"`
	UserID      string   `json:"user_id"`
}

func decodeReport(document docstore.Document) (Report, error) {
	var fields reportFields
	if err := decodeFields(document, &fields); err != nil {
		return Report{}, err
	}
	localities, err := DecodeLocalities(fields.Localities)
	if err != nil {
		return Report{}, fmt.Errorf("report %s: %w", document.ID, err)
	}
	return Report{
		ID:          document.ID,
		Type:        fields.Type,
		Subtype:     fields.Subtype,
		Severity:    fields.Severity,
		Pincode:     fields.Pincode,
		Localities:  localities,
		Description: fields.Description,
		UserID:      fields.UserID,
		CreatedAt:   document.CreatedAt,
	}, nil
}

func decodeComment(document docstore.Document) (Comment, error) {
	var comment Comment
	if err := decodeFields(document, &comment); err != nil {
		return Comment{}, err
	}
	comment.ID = document.ID
	comment.CreatedAt = document.CreatedAt
	return comment, nil
}

func decodeProfile(document docstore.Document) (Profile, error) {
	var profile Profile
	if err := decodeFields(document, &profile); err != nil {
		return Profile{}, err
	}
	profile.ID = document.ID
	return profile, nil
}
