// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the backend session secret between
// crowdsync invocations.
//
// The secret is sealed with age to an X25519 key generated on first
// use. Both files live in the state directory with mode 0600:
//
//	identity.key   age secret key (AGE-SECRET-KEY-1...)
//	session.age    sealed session secret
//
// Sealing keeps the secret out of backups and casual greps of the
// state directory; anyone who can read identity.key can still unseal
// it. Reads and writes are serialized across processes with flock.
package credstore
