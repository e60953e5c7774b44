// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type testParams struct {
	JSONOutput
	Severity   string        `flag:"severity,s" desc:"severity" default:"medium"`
	Localities []string      `flag:"locality" desc:"locality name"`
	Limit      int           `flag:"limit" desc:"limit" default:"10"`
	Timeout    time.Duration `flag:"timeout" desc:"timeout" default:"30s"`
	Ignored    string
}

func TestFlagsFromParams(t *testing.T) {
	var params testParams
	flagSet := FlagsFromParams("test", &params)

	if params.Severity != "medium" || params.Limit != 10 || params.Timeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", params)
	}

	err := flagSet.Parse([]string{
		"-s", "high",
		"--locality", "MG Road, Bangalore",
		"--locality", "Shivajinagar",
		"--json",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Severity != "high" {
		t.Errorf("Severity = %q", params.Severity)
	}
	if len(params.Localities) != 2 || params.Localities[0] != "MG Road, Bangalore" {
		t.Errorf("Localities = %q, commas must not split values", params.Localities)
	}
	if !params.OutputJSON {
		t.Error("--json from embedded JSONOutput was not bound")
	}
	if flagSet.Lookup("ignored") != nil {
		t.Error("untagged field should not become a flag")
	}
}

func TestBindFlagsRejectsNonStruct(t *testing.T) {
	var value string
	if err := BindFlags(&value, nil); err == nil {
		t.Error("expected error for non-struct params")
	}
}

func TestEmitJSON(t *testing.T) {
	var buffer bytes.Buffer
	output := JSONOutput{Writer: &buffer}

	if done, err := output.EmitJSON([]string{"x"}); done || err != nil {
		t.Fatalf("EmitJSON without --json = %v, %v", done, err)
	}

	output.SetJSONOutput(true)
	var empty []string
	if done, err := output.EmitJSON(empty); !done || err != nil {
		t.Fatalf("EmitJSON = %v, %v", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", buffer.String())
	}
}
