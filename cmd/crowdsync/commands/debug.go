// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/lib/codec"
)

func debugCommand(env *Environment) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "debug",
		Summary: "Inspect local state",
		Subcommands: []*cli.Command{
			{
				Name:    "document",
				Summary: "Print a stored document in CBOR diagnostic notation",
				Description: `Print the body of a document in the local sqlite store exactly as
it is encoded on disk. Collections: ` + strings.Join(docstore.Collections, ", ") + `.`,
				Usage: "crowdsync debug document <collection> <id>",
				Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("document", &params) },
				Run: func(args []string) error {
					if len(args) != 2 {
						return cli.Validation("usage: crowdsync debug document <collection> <id>")
					}
					if !slices.Contains(docstore.Collections, args[0]) {
						return cli.Validation("unknown collection %q", args[0]).
							WithHint("Collections: " + strings.Join(docstore.Collections, ", "))
					}
					a, err := openApp(env, params)
					if err != nil {
						return err
					}
					defer a.Close()
					if a.sqlite == nil {
						return cli.Validation("debug document reads the local store; store.backend is %q", a.config.Store.Backend)
					}
					ctx, cancel := a.context(params.Timeout)
					defer cancel()

					body, err := a.sqlite.RawBody(ctx, args[0], args[1])
					if err != nil {
						return classify(err)
					}
					diagnostic, err := codec.Diagnose(body)
					if err != nil {
						return cli.Internal("%w", err)
					}
					fmt.Fprintln(env.Stdout, diagnostic)
					return nil
				},
			},
		},
	}
}
