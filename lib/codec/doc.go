// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every package
// that writes binary state to disk.
//
// JSON is used at external boundaries (the backend REST API, CLI
// output). CBOR is used for document bodies in the local SQLite store.
// The encoder uses Core Deterministic Encoding, so the same document
// always produces the same bytes.
package codec
