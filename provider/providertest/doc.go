// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package providertest runs an in-memory fake of the backend for
// tests.
//
// The fake keeps accounts, one-time tokens, sessions, and documents in
// memory. Emailed links are captured instead of sent: [Server.LastLink]
// and [Server.LastLinkParams] return what the user would have clicked.
// [Server.Calls] counts requests per route and [Server.FailNext]
// injects a backend error into the next request on a route.
//
//	server := providertest.NewServer(t)
//	client := server.NewClient(t)
//	client.CreateMagicURLToken(ctx, "u1", "reporter@example.com", "http://127.0.0.1/auth/callback")
//	userID, secret := server.LastLinkParams(t, "reporter@example.com")
package providertest
