// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the crowdsync command tree.
package commands

import (
	"fmt"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/lib/version"
)

// Root returns the command tree bound to the real process
// environment.
func Root() *cli.Command {
	return NewRoot(DefaultEnvironment())
}

// NewRoot returns the command tree bound to env.
func NewRoot(env *Environment) *cli.Command {
	return &cli.Command{
		Name: "crowdsync",
		Description: `CrowdSync: hazard and disaster reports from the people nearby.

Sign in with a link sent to your email, choose your home pincode, and
read, file, and confirm reports for that area.`,
		Subcommands: []*cli.Command{
			loginCommand(env),
			callbackCommand(env),
			verifyEmailCommand(env),
			whoamiCommand(env),
			logoutCommand(env),
			profileCommand(env),
			feedCommand(env),
			viewCommand(env),
			reportCommand(env),
			commentsCommand(env),
			localitiesCommand(env),
			doctorCommand(env),
			debugCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(env.Stdout, "crowdsync %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Sign in", Command: "crowdsync login asha@example.com --wait"},
			{Description: "Choose the area you follow", Command: "crowdsync profile set-pincode 560001"},
			{Description: "Read the feed", Command: "crowdsync feed"},
			{Description: "Check your setup", Command: "crowdsync doctor"},
		},
	}
}
