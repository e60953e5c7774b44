// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
)

type profileShowParams struct {
	cli.JSONOutput
	connectionParams
}

func profileCommand(env *Environment) *cli.Command {
	var showParams profileShowParams
	var setParams connectionParams

	show := func(args []string) error {
		a, err := openApp(env, showParams.connectionParams)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := a.context(showParams.Timeout)
		defer cancel()

		identity, err := a.signedIn(ctx)
		if err != nil {
			return err
		}
		profile, err := a.repository.GetOrCreateProfile(ctx, identity.ID)
		if err != nil {
			return classify(err)
		}
		showParams.Writer = env.Stdout
		if done, err := showParams.EmitJSON(profile); done {
			return err
		}
		pincode := profile.Pincode
		if pincode == "" {
			pincode = "(not set)"
		}
		fmt.Fprintf(env.Stdout, "User:    %s <%s>\nPincode: %s\n", identity.DisplayName(), identity.Email, pincode)
		return nil
	}

	return &cli.Command{
		Name:    "profile",
		Summary: "Show or change your home pincode",
		Description: `Your profile holds the pincode whose reports the feed shows. It is
created on first use with no pincode.`,
		Subcommands: []*cli.Command{
			{
				Name:    "show",
				Summary: "Show the profile",
				Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &showParams) },
				Run:     show,
			},
			{
				Name:    "set-pincode",
				Summary: "Change the home pincode",
				Usage:   "crowdsync profile set-pincode <6 digit code>",
				Examples: []cli.Example{
					{Command: "crowdsync profile set-pincode 560001"},
				},
				Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("set-pincode", &setParams) },
				Run: func(args []string) error {
					if len(args) != 1 {
						return cli.Validation("usage: crowdsync profile set-pincode <6 digit code>")
					}
					a, err := openApp(env, setParams)
					if err != nil {
						return err
					}
					defer a.Close()
					ctx, cancel := a.context(setParams.Timeout)
					defer cancel()

					if _, err := a.signedIn(ctx); err != nil {
						return err
					}
					controller, err := a.controller()
					if err != nil {
						return err
					}
					return handled(controller.SetPincode(ctx, args[0]))
				},
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("profile", &showParams) },
		Run:   show,
	}
}
