// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestToolError_ErrorWithHint(t *testing.T) {
	err := Forbidden("not signed in").WithHint("Run 'crowdsync login <email>'.")

	want := "not signed in\n\nRun 'crowdsync login <email>'."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if strings.Contains(Internal("x").Error(), "\n\n") {
		t.Error("empty hint should not add a blank line")
	}
}

func TestToolError_SurvivesErrorsAs(t *testing.T) {
	inner := Conflict("already reported")
	wrapped := fmt.Errorf("report duplicate: %w", inner)

	var toolErr *ToolError
	if !errors.As(wrapped, &toolErr) {
		t.Fatal("errors.As should find ToolError in wrapped chain")
	}
	if toolErr.Category != CategoryConflict {
		t.Errorf("Category = %q", toolErr.Category)
	}
}

func TestToolError_ExitCodes(t *testing.T) {
	tests := []struct {
		err  *ToolError
		want int
	}{
		{Validation("bad"), 2},
		{NotFound("missing"), 3},
		{Forbidden("denied"), 4},
		{Conflict("duplicate"), 5},
		{Transient("timeout"), 6},
		{Internal("bug"), 1},
		{&ToolError{Category: "unknown", Err: errors.New("x")}, 1},
	}
	for _, test := range tests {
		if got := test.err.ExitCode(); got != test.want {
			t.Errorf("%s ExitCode() = %d, want %d", test.err.Category, got, test.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	if Categorize(CategoryInternal, nil) != nil {
		t.Error("Categorize(nil) should be nil")
	}

	sentinel := errors.New("boom")
	err := Categorize(CategoryTransient, sentinel)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryTransient {
		t.Fatalf("Categorize = %#v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Error("chain should keep the original error")
	}

	existing := NotFound("no such report")
	if got := Categorize(CategoryInternal, existing); got != error(existing) {
		t.Error("an existing ToolError should pass through unchanged")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline should be transient")
	}
	if !IsTransient(fmt.Errorf("dial: %w", &net.OpError{Op: "dial", Err: errors.New("refused")})) {
		t.Error("net errors should be transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain errors are not transient")
	}
}
