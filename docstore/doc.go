// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package docstore is the document persistence behind the report
// repository. Store has two implementations:
//
//   - Remote talks to the hosted backend through provider.Client and
//     is what signed-in users share.
//   - SQLite keeps documents in a local file for offline and
//     single-user setups (store.backend: sqlite).
//
// Both order documents by creation time with insertion order breaking
// ties, enforce (collection, id) uniqueness on Create, and support only
// equality filters. Callers that need "at most once" semantics pick a
// deterministic ID and treat ErrConflict as already done.
package docstore
