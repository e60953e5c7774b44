// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider wraps the backend-as-a-service REST API that owns
// identity and document storage for crowdsync.
//
// [Client] covers two API families. The account API issues magic-link
// tokens, redeems them for sessions, reports the current user, ends
// sessions, and confirms email addresses. The databases API lists,
// fetches, creates, and updates documents in a collection, with
// filtering and ordering expressed as serialized [Query] values.
//
// A redeemed session is represented by a single secret. The client
// captures it from the session cookie (or the X-Fallback-Cookies
// header), hands it to a [CredentialStore] for persistence, and sends
// it back on every request in the X-Appwrite-Session header.
//
// All API errors are returned as [*Error] carrying the backend's error
// type and HTTP status. [IsErrorType] tests for a specific type.
package provider
