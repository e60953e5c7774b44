// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/locality"
)

func localitiesCommand(env *Environment) *cli.Command {
	var params struct {
		cli.JSONOutput
		connectionParams
	}
	return &cli.Command{
		Name:    "localities",
		Summary: "List the localities of a pincode",
		Description: `Look up the named places a 6 digit pincode covers. These are the
names 'crowdsync report new --locality' accepts.`,
		Usage: "crowdsync localities <pincode> [flags]",
		Examples: []cli.Example{
			{Command: "crowdsync localities 560001"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("localities", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("usage: crowdsync localities <pincode>")
			}
			a, err := openApp(env, params.connectionParams)
			if err != nil {
				return err
			}
			defer a.Close()
			resolver, err := a.resolver()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(params.Timeout)
			defer cancel()

			localities, err := resolver.Resolve(ctx, args[0])
			if err != nil {
				return lookupError(err)
			}
			params.Writer = env.Stdout
			if done, err := params.EmitJSON(localities); done {
				return err
			}
			writer := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "NAME\tLATITUDE\tLONGITUDE")
			for _, l := range localities {
				fmt.Fprintf(writer, "%s\t%.4f\t%.4f\n", l.Name, l.Latitude(), l.Longitude())
			}
			return writer.Flush()
		},
	}
}

// lookupError classifies a Resolve failure, leading with the text the
// pincode form would show.
func lookupError(err error) error {
	classified := classify(err)
	if toolErr, ok := classified.(*cli.ToolError); ok {
		return &cli.ToolError{Category: toolErr.Category, Err: fmt.Errorf("%s: %w", locality.UserMessage(err), err)}
	}
	return classified
}
