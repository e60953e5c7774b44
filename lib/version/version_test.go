// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoIncludesInjectedCommit(t *testing.T) {
	original := GitCommit
	t.Cleanup(func() { GitCommit = original })

	GitCommit = "abc1234"
	if info := Info(); !strings.Contains(info, "abc1234") {
		t.Errorf("Info() = %q, want it to contain the commit", info)
	}
	if !strings.HasPrefix(Full(), Info()) {
		t.Errorf("Full() should start with Info()")
	}
}

func TestUserAgent(t *testing.T) {
	if got, want := UserAgent(), "crowdsync/"+Version; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
