// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that stamp documents or run periodic work take a Clock in
// their Config instead of calling time.Now or time.NewTicker. Tests
// pass a FakeClock and drive time with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store, _ := session.New(session.Config{Clock: fake, RefreshInterval: time.Minute})
//	fake.WaitForTimers(1)
//	fake.Advance(time.Minute)
package clock
