// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package locality turns 6-digit Indian postal codes (pincodes) into
// named places with coordinates.
//
// Resolver validates and classifies; GeoNames is the production
// Geocoder; Tracker drives lookups from a text field and discards
// responses that arrive after the field has changed.
package locality
