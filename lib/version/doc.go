// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the crowdsync binary.
//
// [GitCommit], [BuildTime], and [Version] are injected with
// -ldflags -X. [Info] and [Full] format them for `crowdsync version`;
// [UserAgent] identifies the client to the backend and the geocoder.
package version
