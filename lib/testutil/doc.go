// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared across package tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests waiting on subscriptions or background lookups do
// not hang forever. [UniqueID] hands out distinct identifiers for
// emails, post IDs, and pincodes without reaching for the wall clock.
//
// Helpers fail the test with t.Fatalf rather than returning errors.
package testutil
