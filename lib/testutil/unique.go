// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the process.
//
//	email := testutil.UniqueID("reporter") + "@example.com"
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// UniqueEmail returns a distinct address in the example.com domain.
func UniqueEmail(prefix string) string {
	return UniqueID(prefix) + "@example.com"
}
