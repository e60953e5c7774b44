// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli/doctor"
	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/lib/config"
	"github.com/crowdsync/crowdsync/lib/credstore"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/session"
)

type doctorParams struct {
	cli.JSONOutput
	connectionParams
	Fix bool `flag:"fix" desc:"repair what can be repaired automatically"`
}

func doctorCommand(env *Environment) *cli.Command {
	var params doctorParams
	return &cli.Command{
		Name:    "doctor",
		Summary: "Check configuration, credentials, and connectivity",
		Description: `Run a series of checks against the configuration file, the state
directory, the stored credential, the backend, and the geocoder.
Problems with a known remedy are repaired with --fix.`,
		Usage: "crowdsync doctor [flags]",
		Examples: []cli.Example{
			{Command: "crowdsync doctor --fix"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("doctor", &params) },
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			ctx, cancel := context.WithTimeout(context.Background(), params.Timeout)
			defer cancel()

			results := runChecks(ctx, env, params.connectionParams)
			if params.Fix {
				doctor.ExecuteFixes(ctx, results)
			}

			params.Writer = env.Stdout
			if done, err := params.EmitJSON(doctor.BuildJSON(results)); done {
				if err != nil {
					return err
				}
				if !doctor.BuildJSON(results).OK {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}
			return doctor.PrintChecklist(env.Stdout, results, params.Fix)
		},
	}
}

// runChecks runs every check in order. Checks that depend on an
// earlier failure are skipped rather than reported as failures.
func runChecks(ctx context.Context, env *Environment, params connectionParams) []doctor.Result {
	logger := env.logger(params.Verbose)
	var results []doctor.Result

	cfg, err := loadConfig(env, params.ConfigPath)
	if err != nil {
		var toolErr *cli.ToolError
		message := err.Error()
		if errors.As(err, &toolErr) {
			message = toolErr.Err.Error()
		}
		results = append(results, doctor.Fail("configuration", strings.ReplaceAll(message, "\n", "; ")))
		for _, name := range []string{"state directory", "credentials", "backend", "session", "document store", "geocoder"} {
			results = append(results, doctor.Skip(name, "configuration is invalid"))
		}
		return results
	}
	results = append(results, doctor.Pass("configuration", fmt.Sprintf("%s environment, %s store", cfg.Environment, cfg.Store.Backend)))

	results = append(results, checkStateDirectory(cfg))

	credentialDirectory := cfg.Paths.State
	if override := env.Getenv("CROWDSYNC_SESSION_DIR"); override != "" {
		credentialDirectory = override
	}
	credentials, credentialResult := checkCredentials(credentialDirectory, logger)
	results = append(results, credentialResult)

	client, err := provider.NewClient(provider.ClientConfig{
		Endpoint:    cfg.Provider.Endpoint,
		ProjectID:   cfg.Provider.ProjectID,
		HTTPClient:  env.HTTPClient,
		Logger:      logger,
		Credentials: credentials,
	})
	if err != nil {
		results = append(results, doctor.Fail("backend", err.Error()))
		results = append(results, doctor.Skip("session", "backend client could not be built"))
		results = append(results, doctor.Skip("document store", "backend client could not be built"))
		return append(results, checkGeocoder(cfg))
	}

	serverVersion, err := client.ServerVersion(ctx)
	if err != nil {
		results = append(results, doctor.Fail("backend", fmt.Sprintf("%s unreachable: %v", cfg.Provider.Endpoint, err)))
		results = append(results, doctor.Skip("session", "backend is unreachable"))
	} else {
		results = append(results, doctor.Pass("backend", fmt.Sprintf("%s (server %s)", cfg.Provider.Endpoint, serverVersion)))
		results = append(results, checkSession(ctx, cfg, client, logger))
	}

	results = append(results, checkStore(ctx, cfg, client, logger))
	return append(results, checkGeocoder(cfg))
}

func checkStateDirectory(cfg *config.Config) doctor.Result {
	info, err := os.Stat(cfg.Paths.State)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return doctor.FailWithFix("state directory", cfg.Paths.State+" does not exist", "create it",
			func(context.Context) error { return cfg.EnsurePaths() })
	case err != nil:
		return doctor.Fail("state directory", err.Error())
	case !info.IsDir():
		return doctor.Fail("state directory", cfg.Paths.State+" is not a directory")
	case info.Mode().Perm()&0o077 != 0:
		return doctor.FailWithFix("state directory",
			fmt.Sprintf("%s is accessible to other users (mode %04o)", cfg.Paths.State, info.Mode().Perm()),
			"restrict it to the owner",
			func(context.Context) error { return os.Chmod(cfg.Paths.State, 0o700) })
	}
	return doctor.Pass("state directory", cfg.Paths.State)
}

// checkCredentials opens the credential store and tries to unseal the
// stored secret. The returned store is nil unless the secret is
// readable, so later checks fall back to an in-memory credential.
func checkCredentials(directory string, logger *slog.Logger) (provider.CredentialStore, doctor.Result) {
	if _, err := os.Stat(directory); errors.Is(err, os.ErrNotExist) {
		return nil, doctor.Warn("credentials", "no stored session")
	}
	store, err := credstore.Open(directory, logger)
	if err != nil {
		return nil, doctor.Fail("credentials", err.Error())
	}
	secret, err := store.Load()
	if err != nil {
		return nil, doctor.FailWithFix("credentials", err.Error(), "discard the stored session and sign in again",
			func(context.Context) error { return store.Clear() })
	}
	if secret == "" {
		return store, doctor.Warn("credentials", "no stored session")
	}
	return store, doctor.Pass("credentials", store.Path())
}

func checkSession(ctx context.Context, cfg *config.Config, client *provider.Client, logger *slog.Logger) doctor.Result {
	store, err := session.New(session.Config{Account: client, CallbackURL: cfg.App.CallbackURL(), Logger: logger})
	if err != nil {
		return doctor.Fail("session", err.Error())
	}
	defer store.Close()

	store.CheckSession(ctx)
	identity, ok := store.Current()
	if !ok {
		return doctor.Warn("session", "signed out; run 'crowdsync login <email>'")
	}
	return doctor.Pass("session", fmt.Sprintf("signed in as %s <%s>", identity.DisplayName(), identity.Email))
}

// checkStore reads one report to prove the store answers. The remote
// store needs a session, so a rejected session is a warning.
func checkStore(ctx context.Context, cfg *config.Config, client *provider.Client, logger *slog.Logger) doctor.Result {
	var store docstore.Store
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		sqliteStore, err := docstore.OpenSQLite(docstore.SQLiteConfig{Path: cfg.Store.SQLitePath, Logger: logger})
		if err != nil {
			return doctor.Fail("document store", err.Error())
		}
		defer sqliteStore.Close()
		store = sqliteStore
	default:
		remote, err := docstore.NewRemote(docstore.RemoteConfig{
			API:        client,
			DatabaseID: cfg.Provider.DatabaseID,
			Collections: map[string]string{
				docstore.CollectionProfiles:   cfg.Provider.Collections.Profiles,
				docstore.CollectionReports:    cfg.Provider.Collections.Reports,
				docstore.CollectionDuplicates: cfg.Provider.Collections.Duplicates,
				docstore.CollectionComments:   cfg.Provider.Collections.Comments,
			},
			Logger: logger,
		})
		if err != nil {
			return doctor.Fail("document store", err.Error())
		}
		store = remote
	}

	page, err := store.List(ctx, docstore.CollectionReports, docstore.Query{Limit: 1})
	switch {
	case errors.Is(err, docstore.ErrUnauthenticated):
		return doctor.Warn("document store", "sign in to check the remote collections")
	case err != nil:
		return doctor.Fail("document store", err.Error())
	}
	if cfg.Store.Backend == config.BackendSQLite {
		return doctor.Pass("document store", fmt.Sprintf("%s (%d reports)", cfg.Store.SQLitePath, page.Total))
	}
	return doctor.Pass("document store", fmt.Sprintf("database %s (%d reports)", cfg.Provider.DatabaseID, page.Total))
}

func checkGeocoder(cfg *config.Config) doctor.Result {
	if cfg.Geocoder.Username == "" {
		return doctor.Warn("geocoder", "geocoder.username is not set; reports and pincode lookups will fail")
	}
	return doctor.Pass("geocoder", fmt.Sprintf("%s as %s", cfg.Geocoder.BaseURL, cfg.Geocoder.Username))
}
