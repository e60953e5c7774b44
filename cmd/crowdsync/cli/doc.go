// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the crowdsync binary.
//
// A [Command] tree is dispatched by the first positional argument,
// flags are parsed with pflag, and unknown commands or flags get a
// "did you mean" suggestion based on edit distance. Commands return
// categorized errors ([ToolError]) so main can choose an exit code
// without inspecting message text, and [ExitError] for handled
// non-zero exits that have already printed their own output.
//
// Parameter structs bind flags through struct tags ([FlagsFromParams])
// and embed [JSONOutput] to get a --json flag.
package cli
