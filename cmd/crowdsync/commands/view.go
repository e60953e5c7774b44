// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/lib/feedui"
	"github.com/crowdsync/crowdsync/locality"
)

func viewCommand(env *Environment) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "view",
		Summary: "Browse your feed interactively",
		Description: `Open a full-screen feed of reports for your home pincode. Move with
the arrow keys, press enter to read comments, d to confirm you saw
the same issue, r to refresh, and q to quit. Without a home pincode
the view asks for one and lists its localities as you type.

The session is re-checked every session.refresh_interval; signing in
or out in another terminal updates the view.`,
		Usage: "crowdsync view [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("view", &params) },
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument %q", args[0])
			}
			if file, ok := env.Stdout.(*os.File); !ok || !cli.IsTerminal(file) {
				return cli.Validation("view needs a terminal").WithHint("Use 'crowdsync feed' for plain output.")
			}

			a, err := openApp(env, params)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := a.context(0)
			defer cancel()

			events := feedui.NewEvents()
			controller, err := feed.New(feed.Config{
				Identity:   a.session,
				Repository: a.repository,
				Notifier:   events,
				OnChange:   events.OnChange,
				Logger:     a.logger,
			})
			if err != nil {
				return cli.Internal("%w", err)
			}

			// The capture form still works without a geocoder; it then
			// only checks the pincode format.
			var tracker *locality.Tracker
			if resolver, err := a.resolver(); err == nil {
				tracker = locality.NewTracker(resolver, events.OnLocalities)
			} else {
				a.logger.Warn("pincode lookups disabled", "error", err)
			}

			a.session.Start(ctx)
			states, unsubscribe := a.session.Subscribe()
			defer unsubscribe()
			go controller.Watch(ctx, states)

			return feedui.Run(feedui.Config{
				Actions:    controller,
				Events:     events,
				Localities: tracker,
				Context:    ctx,
			})
		},
	}
}
