// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package feedui is the terminal feed viewer behind "crowdsync view".
//
// The model renders a [feed.State] and turns key presses into
// controller calls. State changes and notifications flow back through
// [Events], which the controller is configured with as its OnChange
// callback and Notifier. The package also owns the severity and
// notification colors used by the plain-text CLI output, so both
// surfaces agree.
package feedui
