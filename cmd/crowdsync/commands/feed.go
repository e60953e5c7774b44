// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/lib/feedui"
	"github.com/crowdsync/crowdsync/locality"
	"github.com/crowdsync/crowdsync/report"
)

type feedParams struct {
	cli.JSONOutput
	connectionParams
	Pincode string `flag:"pincode,p" desc:"show another pincode's reports without changing your profile"`
}

// feedResult is the --json shape of the feed command.
type feedResult struct {
	View    string            `json:"view"`
	Pincode string            `json:"pincode,omitempty"`
	Items   []report.FeedItem `json:"items"`
}

func feedCommand(env *Environment) *cli.Command {
	var params feedParams
	return &cli.Command{
		Name:    "feed",
		Summary: "List reports for your pincode",
		Description: `List the reports filed for your home pincode, newest first, with the
number of people who saw the same issue. Set the home pincode with
'crowdsync profile set-pincode'.`,
		Usage: "crowdsync feed [flags]",
		Examples: []cli.Example{
			{Description: "Your feed", Command: "crowdsync feed"},
			{Description: "Another area, as JSON", Command: "crowdsync feed --pincode 400001 --json"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("feed", &params) },
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument %q", args[0])
			}
			a, err := openApp(env, params.connectionParams)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := a.context(params.Timeout)
			defer cancel()

			if _, err := a.signedIn(ctx); err != nil {
				return err
			}
			params.Writer = env.Stdout

			if params.Pincode != "" {
				if !locality.ValidPincode(params.Pincode) {
					return cli.Validation("%s", locality.UserMessage(locality.ErrInvalidPincode))
				}
				items, err := a.repository.ListReports(ctx, params.Pincode)
				if err != nil {
					return classify(err)
				}
				if done, err := params.EmitJSON(feedResult{View: feed.ViewFeed.String(), Pincode: params.Pincode, Items: items}); done {
					return err
				}
				printFeed(env.Stdout, params.Pincode, items, time.Now())
				return nil
			}

			controller, err := a.controller()
			if err != nil {
				return err
			}
			if err := controller.Refresh(ctx); err != nil {
				return handled(err)
			}
			state := controller.State()
			if done, err := params.EmitJSON(feedResult{View: state.View.String(), Pincode: state.Profile.Pincode, Items: state.Items}); done {
				return err
			}
			switch state.View {
			case feed.ViewSignedOut:
				return notSignedIn()
			case feed.ViewPincodeCapture:
				fmt.Fprintln(env.Stdout, "Set your pincode to see reports near you:")
				fmt.Fprintln(env.Stdout, "  crowdsync profile set-pincode <6 digit code>")
				return nil
			}
			printFeed(env.Stdout, state.Profile.Pincode, state.Items, time.Now())
			return nil
		},
	}
}

func printFeed(w io.Writer, pincode string, items []report.FeedItem, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintf(w, "No reports for %s yet.\n", pincode)
		return
	}
	theme := feedui.DefaultTheme
	for _, item := range items {
		line := fmt.Sprintf("%s  %s / %s  %s", theme.SeverityBadge(item.Severity), item.Type, item.Subtype,
			feedui.Age(now, item.CreatedAt))
		if item.Duplicates > 0 {
			line += fmt.Sprintf("  · %d also reported", item.Duplicates)
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "    %s\n", feedui.LocalityNames(item.Report))
		if item.Description != "" {
			fmt.Fprintf(w, "    %s\n", item.Description)
		}
		fmt.Fprintf(w, "    id: %s\n", item.ID)
	}
}

type reportNewParams struct {
	cli.JSONOutput
	connectionParams
	Type        string   `flag:"type,t" desc:"Hazard or Disaster"`
	Subtype     string   `flag:"subtype,s" desc:"what happened, for example fire or flood"`
	Severity    string   `flag:"severity" desc:"low, medium, or high" default:"medium"`
	Pincode     string   `flag:"pincode,p" desc:"where it happened (default: your home pincode)"`
	Localities  []string `flag:"locality,l" desc:"locality name within the pincode (repeatable)"`
	Description string   `flag:"description,d" desc:"details for people nearby"`
}

func reportCommand(env *Environment) *cli.Command {
	var newParams reportNewParams
	var duplicateParams connectionParams
	return &cli.Command{
		Name:    "report",
		Summary: "File a report or confirm someone else's",
		Subcommands: []*cli.Command{
			{
				Name:    "new",
				Summary: "File a hazard or disaster report",
				Description: `File a report for a pincode. Localities are looked up from the
pincode; name one or more with --locality. When the pincode has a
single locality it is used without asking.

Known subtypes:
  Hazard:   ` + strings.Join(report.KnownSubtypes[report.Hazard], ", ") + `
  Disaster: ` + strings.Join(report.KnownSubtypes[report.Disaster], ", "),
				Usage: "crowdsync report new --type <type> --subtype <subtype> [flags]",
				Examples: []cli.Example{
					{
						Description: "A fallen tree in one locality of your home pincode",
						Command:     "crowdsync report new -t Hazard -s 'fallen tree' --severity high -l 'MG Road'",
					},
				},
				Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("new", &newParams) },
				Run: func(args []string) error {
					if len(args) > 0 {
						return cli.Validation("unexpected argument %q", args[0])
					}
					return submitReport(env, newParams)
				},
			},
			{
				Name:    "duplicate",
				Summary: "Confirm that you saw the same issue",
				Description: `Count yourself among the people who saw a reported issue. Each
account counts once per report.`,
				Usage: "crowdsync report duplicate <report id>",
				Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("duplicate", &duplicateParams) },
				Run: func(args []string) error {
					if len(args) != 1 {
						return cli.Validation("usage: crowdsync report duplicate <report id>")
					}
					a, err := openApp(env, duplicateParams)
					if err != nil {
						return err
					}
					defer a.Close()
					ctx, cancel := a.context(duplicateParams.Timeout)
					defer cancel()

					if _, err := a.signedIn(ctx); err != nil {
						return err
					}
					controller, err := a.controller()
					if err != nil {
						return err
					}
					return handled(controller.MarkDuplicate(ctx, args[0]))
				},
			},
		},
	}
}

func submitReport(env *Environment, params reportNewParams) error {
	var problems []string
	reportType, err := report.ParseType(params.Type)
	if err != nil {
		problems = append(problems, err.Error())
	}
	severity, err := report.ParseSeverity(params.Severity)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(params.Subtype) == "" {
		problems = append(problems, "--subtype is required")
	}
	if len(problems) > 0 {
		return cli.Validation("%s", strings.Join(problems, "\n"))
	}

	a, err := openApp(env, params.connectionParams)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := a.context(params.Timeout)
	defer cancel()

	identity, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	pincode := params.Pincode
	if pincode == "" {
		profile, err := a.repository.GetOrCreateProfile(ctx, identity.ID)
		if err != nil {
			return classify(err)
		}
		if !profile.HasPincode() {
			return cli.Validation("no pincode given and no home pincode set").
				WithHint("Pass --pincode or run 'crowdsync profile set-pincode <code>'.")
		}
		pincode = profile.Pincode
	}

	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	available, err := resolver.Resolve(ctx, pincode)
	if err != nil {
		return lookupError(err)
	}
	selected, err := selectLocalities(available, params.Localities)
	if err != nil {
		return err
	}

	controller, err := a.controller()
	if err != nil {
		return err
	}
	created, err := controller.SubmitReport(ctx, report.Draft{
		Type:        reportType,
		Subtype:     params.Subtype,
		Severity:    severity,
		Pincode:     pincode,
		Localities:  selected,
		Description: params.Description,
	})
	if err != nil {
		return handled(err)
	}
	params.Writer = env.Stdout
	if done, err := params.EmitJSON(created); done {
		return err
	}
	fmt.Fprintf(env.Stdout, "Report %s filed for %s (%s).\n", created.ID, pincode, feedui.LocalityNames(created))
	return nil
}

// selectLocalities picks the named localities out of available,
// matching names without regard to case. With no names, a pincode
// with a single locality selects it.
func selectLocalities(available []locality.Locality, names []string) ([]locality.Locality, error) {
	choices := make([]string, 0, len(available))
	for _, l := range available {
		choices = append(choices, l.Name)
	}
	if len(names) == 0 {
		if len(available) == 1 {
			return available, nil
		}
		return nil, cli.Validation("choose at least one locality with --locality").
			WithHint("Localities for this pincode: " + strings.Join(choices, ", "))
	}

	var selected []locality.Locality
	for _, name := range names {
		index := slices.IndexFunc(available, func(l locality.Locality) bool {
			return strings.EqualFold(strings.TrimSpace(name), l.Name)
		})
		if index < 0 {
			return nil, cli.Validation("unknown locality %q", name).
				WithHint("Localities for this pincode: " + strings.Join(choices, ", "))
		}
		if !slices.ContainsFunc(selected, func(l locality.Locality) bool { return l.Name == available[index].Name }) {
			selected = append(selected, available[index])
		}
	}
	return selected, nil
}

func commentsCommand(env *Environment) *cli.Command {
	var listParams struct {
		cli.JSONOutput
		connectionParams
	}
	var addParams connectionParams
	return &cli.Command{
		Name:    "comments",
		Summary: "Read and add comments on a report",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Summary: "Show a report's comments, newest first",
				Usage:   "crowdsync comments list <report id> [flags]",
				Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &listParams) },
				Run: func(args []string) error {
					if len(args) != 1 {
						return cli.Validation("usage: crowdsync comments list <report id>")
					}
					a, err := openApp(env, listParams.connectionParams)
					if err != nil {
						return err
					}
					defer a.Close()
					ctx, cancel := a.context(listParams.Timeout)
					defer cancel()

					if _, err := a.signedIn(ctx); err != nil {
						return err
					}
					controller, err := a.controller()
					if err != nil {
						return err
					}
					comments, err := controller.LoadComments(ctx, args[0])
					if err != nil {
						return handled(err)
					}
					listParams.Writer = env.Stdout
					if done, err := listParams.EmitJSON(comments); done {
						return err
					}
					printComments(env.Stdout, comments, time.Now())
					return nil
				},
			},
			{
				Name:    "add",
				Summary: "Comment on a report",
				Usage:   "crowdsync comments add <report id> <text...>",
				Examples: []cli.Example{
					{Command: "crowdsync comments add 3f2a... 'Fire brigade is on site.'"},
				},
				Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("add", &addParams) },
				Run: func(args []string) error {
					if len(args) < 2 {
						return cli.Validation("usage: crowdsync comments add <report id> <text...>")
					}
					a, err := openApp(env, addParams)
					if err != nil {
						return err
					}
					defer a.Close()
					ctx, cancel := a.context(addParams.Timeout)
					defer cancel()

					if _, err := a.signedIn(ctx); err != nil {
						return err
					}
					controller, err := a.controller()
					if err != nil {
						return err
					}
					postID := args[0]
					if err := controller.AddComment(ctx, postID, strings.Join(args[1:], " ")); err != nil {
						return handled(err)
					}
					fmt.Fprintf(env.Stdout, "Comment added. %d comment(s) on this report.\n", len(controller.State().Comments[postID]))
					return nil
				},
			},
		},
	}
}

func printComments(w io.Writer, comments []report.Comment, now time.Time) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "No comments yet.")
		return
	}
	for _, comment := range comments {
		fmt.Fprintf(w, "%s: %s\n", feedui.Age(now, comment.CreatedAt), comment.Content)
	}
}
