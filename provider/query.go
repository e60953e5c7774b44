// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"encoding/json"
	"fmt"
)

// Query is one serialized list filter, passed as a queries[] parameter.
type Query string

// QuerySpec is the decoded form of a Query.
type QuerySpec struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

// Query methods understood by the client.
const (
	MethodEqual     = "equal"
	MethodOrderDesc = "orderDesc"
	MethodOrderAsc  = "orderAsc"
	MethodLimit     = "limit"
)

func encodeQuery(spec QuerySpec) Query {
	// Marshalling strings, numbers, and nested slices of them cannot fail.
	encoded, _ := json.Marshal(spec)
	return Query(encoded)
}

// Equal matches documents whose attribute equals any of values.
func Equal(attribute string, values ...any) Query {
	return encodeQuery(QuerySpec{Method: MethodEqual, Attribute: attribute, Values: values})
}

// OrderDesc sorts by attribute, largest first. "$createdAt" orders by
// server-assigned creation time.
func OrderDesc(attribute string) Query {
	return encodeQuery(QuerySpec{Method: MethodOrderDesc, Attribute: attribute})
}

// OrderAsc sorts by attribute, smallest first.
func OrderAsc(attribute string) Query {
	return encodeQuery(QuerySpec{Method: MethodOrderAsc, Attribute: attribute})
}

// Limit caps the number of returned documents.
func Limit(n int) Query {
	return encodeQuery(QuerySpec{Method: MethodLimit, Values: []any{n}})
}

// ParseQuery decodes a serialized query.
func ParseQuery(query string) (QuerySpec, error) {
	var spec QuerySpec
	if err := json.Unmarshal([]byte(query), &spec); err != nil {
		return QuerySpec{}, fmt.Errorf("provider: invalid query %q: %w", query, err)
	}
	if spec.Method == "" {
		return QuerySpec{}, fmt.Errorf("provider: query %q has no method", query)
	}
	return spec, nil
}
