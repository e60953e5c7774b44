// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
)

// Status is the outcome of a single health check.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusWarn  Status = "warn"
	StatusSkip  Status = "skip"
	StatusFixed Status = "fixed"
)

// FixAction repairs a failed check. Dependencies are captured in the
// closure when the check is built.
type FixAction func(ctx context.Context) error

// Result holds the outcome of a single health check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	FixHint string `json:"fix_hint,omitempty"`
	fix     FixAction
}

// HasFix reports whether this result carries a fix action.
func (r *Result) HasFix() bool {
	return r.fix != nil
}

func Pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message}
}

func Fail(name, message string) Result {
	return Result{Name: name, Status: StatusFail, Message: message}
}

// FailWithFix creates a failing result that --fix can repair.
func FailWithFix(name, message, fixHint string, fix FixAction) Result {
	return Result{Name: name, Status: StatusFail, Message: message, FixHint: fixHint, fix: fix}
}

// Warn results do not make doctor exit non-zero.
func Warn(name, message string) Result {
	return Result{Name: name, Status: StatusWarn, Message: message}
}

// Skip is used when a prerequisite check failed.
func Skip(name, message string) Result {
	return Result{Name: name, Status: StatusSkip, Message: message}
}

// JSONOutput is the --json form of a doctor run.
type JSONOutput struct {
	Checks []Result `json:"checks"`
	OK     bool     `json:"ok"`
}

// ExecuteFixes runs the fix for each fixable failure, updating results
// in place, and returns how many succeeded.
func ExecuteFixes(ctx context.Context, results []Result) int {
	fixed := 0
	for i := range results {
		if results[i].Status != StatusFail || results[i].fix == nil {
			continue
		}
		if err := results[i].fix(ctx); err != nil {
			results[i].Message = fmt.Sprintf("%s (fix failed: %v)", results[i].Message, err)
			continue
		}
		results[i].Status = StatusFixed
		fixed++
	}
	return fixed
}

// BuildJSON builds the --json output for results.
func BuildJSON(results []Result) JSONOutput {
	return JSONOutput{Checks: results, OK: !anyFailed(results)}
}

// PrintChecklist writes results as a checklist. It returns an
// ExitError with code 1 when any check failed.
func PrintChecklist(w io.Writer, results []Result, fixMode bool) error {
	fixable := 0
	fixed := 0
	for _, result := range results {
		fmt.Fprintf(w, "[%-5s]  %-28s  %s\n", strings.ToUpper(string(result.Status)), result.Name, result.Message)
		switch result.Status {
		case StatusFail:
			if result.FixHint != "" {
				fixable++
			}
		case StatusFixed:
			fixed++
		}
	}
	fmt.Fprintln(w)

	if anyFailed(results) {
		if !fixMode && fixable > 0 {
			fmt.Fprintf(w, "Run with --fix to repair %d issue(s).\n", fixable)
		} else {
			fmt.Fprintln(w, "Some checks failed.")
		}
		return &cli.ExitError{Code: 1}
	}
	if fixed > 0 {
		fmt.Fprintf(w, "%d issue(s) repaired.\n", fixed)
		return nil
	}
	fmt.Fprintln(w, "All checks passed.")
	return nil
}

func anyFailed(results []Result) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}
