// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the signed-in identity for one process.
//
// A Store is constructed once at start-up, rehydrated from the
// backend with Start, and torn down with Close. It keeps nothing on
// disk itself: the session secret lives in the provider client's
// CredentialStore, and the Store only caches whatever "who am I"
// last returned. Being signed out is the normal state, not an error.
package session
