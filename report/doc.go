// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package report is the data layer for hazard reports, duplicate
// marks, comments, and user profiles.
//
// Mutations return an Invalidation naming the list that is now stale;
// the feed controller re-runs it. Uniqueness of duplicate marks and
// profiles comes from IDs derived with BLAKE3 from the owning keys,
// so the store rejects a second insert even when two clients race
// past the existence check.
package report
