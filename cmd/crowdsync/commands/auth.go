// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/callback"
	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
)

type loginParams struct {
	connectionParams
	Wait        bool          `flag:"wait" desc:"serve the callback at app.base_url and wait for the link to be opened"`
	WaitTimeout time.Duration `flag:"wait-timeout" desc:"how long --wait waits for the link" default:"15m"`
}

func loginCommand(env *Environment) *cli.Command {
	var params loginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Email yourself a sign-in link",
		Description: `Send a magic sign-in link to an email address.

The link points at app.base_url plus app.callback_path. With --wait,
crowdsync serves that address itself and finishes signing in as soon
as the link is opened in a browser on this machine. Without --wait,
copy the link from the email and run 'crowdsync callback <link>'.`,
		Usage: "crowdsync login <email> [flags]",
		Examples: []cli.Example{
			{Description: "Sign in and wait for the link", Command: "crowdsync login asha@example.com --wait"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("login", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("usage: crowdsync login <email>")
			}
			a, err := openApp(env, params.connectionParams)
			if err != nil {
				return err
			}
			defer a.Close()

			var listener *callback.Listener
			if params.Wait {
				listener, err = a.listen()
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					listener.Shutdown(shutdownCtx)
				}()
			}

			ctx, cancel := a.context(params.Timeout)
			err = a.session.SendMagicLink(ctx, args[0])
			cancel()
			if err != nil {
				return classify(err)
			}
			fmt.Fprintf(env.Stdout, "Sign-in link sent to %s.\n", strings.TrimSpace(args[0]))

			if listener == nil {
				fmt.Fprintln(env.Stdout, "Open the link, or run 'crowdsync callback <link>' with the address from the email.")
				return nil
			}

			fmt.Fprintf(env.Stdout, "Waiting for the link to be opened (listening on %s)...\n", listener.Addr())
			waitCtx, cancelWait := a.context(params.WaitTimeout)
			defer cancelWait()
			attempt, err := listener.Wait(waitCtx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return cli.Transient("the link was not opened within %s", params.WaitTimeout).
						WithHint("Run 'crowdsync callback <link>' with the address from the email.")
				}
				return classify(err)
			}
			return a.reportAttempt(attempt)
		},
	}
}

// listen starts the loopback callback server on app.base_url's host.
func (a *app) listen() (*callback.Listener, error) {
	address, err := listenAddress(a.config.App.BaseURL)
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	verifier, err := a.verifier()
	if err != nil {
		return nil, err
	}
	listener, err := callback.Listen(callback.ListenerConfig{
		Address: address,
		Handler: callback.HandlerConfig{
			Verifier:        verifier,
			Identity:        a.session,
			CallbackPath:    a.config.App.CallbackPath,
			VerifyEmailPath: a.config.App.VerifyEmailPath,
			HomePath:        a.config.App.HomePath,
		},
		Logger: a.logger,
	})
	if err != nil {
		return nil, cli.Internal("%w", err).
			WithHint("Another process may be using this port; change app.base_url or drop --wait.")
	}
	return listener, nil
}

// listenAddress is the host:port of baseURL, with the scheme's default
// port when none is given.
func listenAddress(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("app.base_url: %w", err)
	}
	if parsed.Port() != "" {
		return parsed.Host, nil
	}
	port := "80"
	if parsed.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(parsed.Hostname(), port), nil
}

func (a *app) reportAttempt(attempt *callback.Attempt) error {
	if attempt.Status != callback.StatusSuccess {
		category := cli.CategoryForbidden
		if errors.Is(attempt.Err, callback.ErrMissingParameters) {
			category = cli.CategoryValidation
		}
		err := attempt.Err
		if err == nil {
			err = errors.New(attempt.Message())
		}
		return &cli.ToolError{Category: category, Err: err,
			Hint: "Request a new link with 'crowdsync login <email>'."}
	}
	if attempt.Mode == callback.ModeEmailVerification {
		fmt.Fprintln(a.env.Stdout, attempt.Message())
		return nil
	}
	if identity, ok := a.session.Current(); ok {
		fmt.Fprintf(a.env.Stdout, "Signed in as %s <%s>.\n", identity.DisplayName(), identity.Email)
		return nil
	}
	fmt.Fprintln(a.env.Stdout, attempt.Message())
	return nil
}

type callbackParams struct {
	connectionParams
	Token bool `flag:"token" desc:"redeem through the generic token session endpoint instead of the magic-url one"`
}

func callbackCommand(env *Environment) *cli.Command {
	var params callbackParams
	return &cli.Command{
		Name:    "callback",
		Summary: "Finish signing in with a link from the email",
		Description: `Redeem the userId and secret carried by a sign-in link. Each link
works once; a second attempt is rejected by the backend.`,
		Usage: "crowdsync callback <link> [flags]",
		Examples: []cli.Example{
			{Command: "crowdsync callback 'http://127.0.0.1:8787/auth/callback?userId=...&secret=...'"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("callback", &params) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("usage: crowdsync callback <link>")
			}
			mode := callback.ModeMagicURL
			if params.Token {
				mode = callback.ModeToken
			}
			return redeemLink(env, params.connectionParams, mode, args[0])
		},
	}
}

func verifyEmailCommand(env *Environment) *cli.Command {
	var params connectionParams
	var sendParams connectionParams
	return &cli.Command{
		Name:    "verify-email",
		Summary: "Confirm your email address",
		Description: `Confirm an email address with the link from a verification email.
Use 'crowdsync verify-email send' to have one sent to the signed-in
account.`,
		Usage: "crowdsync verify-email <link> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify-email", &params) },
		Subcommands: []*cli.Command{
			{
				Name:    "send",
				Summary: "Email a verification link to the signed-in account",
				Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("send", &sendParams) },
				Run: func(args []string) error {
					a, err := openApp(env, sendParams)
					if err != nil {
						return err
					}
					defer a.Close()
					ctx, cancel := a.context(sendParams.Timeout)
					defer cancel()

					identity, err := a.signedIn(ctx)
					if err != nil {
						return err
					}
					if identity.EmailVerified {
						fmt.Fprintf(env.Stdout, "%s is already verified.\n", identity.Email)
						return nil
					}
					if _, err := a.client.CreateVerification(ctx, a.config.App.VerifyEmailURL()); err != nil {
						return classify(err)
					}
					fmt.Fprintf(env.Stdout, "Verification link sent to %s.\n", identity.Email)
					return nil
				},
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("usage: crowdsync verify-email <link>")
			}
			return redeemLink(env, params, callback.ModeEmailVerification, args[0])
		},
	}
}

func redeemLink(env *Environment, params connectionParams, mode callback.Mode, link string) error {
	a, err := openApp(env, params)
	if err != nil {
		return err
	}
	defer a.Close()

	verifier, err := a.verifier()
	if err != nil {
		return err
	}
	ctx, cancel := a.context(params.Timeout)
	defer cancel()
	return a.reportAttempt(verifier.VerifyURL(ctx, mode, link))
}

func whoamiCommand(env *Environment) *cli.Command {
	var params struct {
		cli.JSONOutput
		connectionParams
	}
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the signed-in account",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("whoami", &params) },
		Run: func(args []string) error {
			a, err := openApp(env, params.connectionParams)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := a.context(params.Timeout)
			defer cancel()

			identity, err := a.session.Revalidate(ctx)
			if err != nil {
				return classify(err)
			}
			params.Writer = env.Stdout
			if done, err := params.EmitJSON(identity); done {
				return err
			}
			verified := "unverified"
			if identity.EmailVerified {
				verified = "verified"
			}
			fmt.Fprintf(env.Stdout, "%s <%s> (%s)\nID: %s\n", identity.DisplayName(), identity.Email, verified, identity.ID)
			return nil
		},
	}
}

func logoutCommand(env *Environment) *cli.Command {
	var params connectionParams
	return &cli.Command{
		Name:    "logout",
		Summary: "End the session and forget the stored credential",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("logout", &params) },
		Run: func(args []string) error {
			a, err := openApp(env, params)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := a.context(params.Timeout)
			defer cancel()

			if err := a.session.Logout(ctx); err != nil {
				return classify(err)
			}
			fmt.Fprintln(env.Stdout, "Signed out.")
			return nil
		},
	}
}
