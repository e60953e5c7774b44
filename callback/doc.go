// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package callback completes sign-in and email verification links.
//
// A link carries userId and secret. The Verifier exchanges them with
// the backend exactly once per Attempt: missing parameters fail
// without a request, a rejected secret fails with the backend's
// message, and success refreshes the session and redirects home once.
// There is no retry; the user requests a new link.
//
// Handler serves the routes over HTTP and Listener runs it on a
// loopback port for terminal sign-in.
package callback
