// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor runs health checks for "crowdsync doctor" and reports
// them in a consistent format. Fixable failures carry fix closures
// that run in --fix mode.
package doctor
