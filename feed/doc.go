// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed orchestrates what a signed-in user sees: the pincode
// prompt until a home pincode is set, then the newest reports for it.
//
// Every mutation returns a report.Invalidation and the controller
// re-runs the named query. Failures become a Notification at the call
// site (generic text, details logged) and are never retried.
package feed
