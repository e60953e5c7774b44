// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the crowdsync client configuration.
//
// Configuration comes from one file named by --config or the
// CROWDSYNC_CONFIG environment variable. YAML is the native format;
// .json and .jsonc files are accepted too. The file may carry
// development and production sections that override base values when
// the environment matches.
//
// Environment variables do not override file values. A file can pull
// them in explicitly with ${VAR} or ${VAR:-default}, and when no file
// is given at all [FromEnvironment] reads the three deployment values
// (endpoint, project, app URL) directly.
package config
