// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/crowdsync/crowdsync/callback"
	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/lib/config"
	"github.com/crowdsync/crowdsync/lib/credstore"
	"github.com/crowdsync/crowdsync/lib/feedui"
	"github.com/crowdsync/crowdsync/locality"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/report"
	"github.com/crowdsync/crowdsync/session"
)

// Environment is what a command sees of the process: its output
// streams, its environment variables, and optionally a fixed logger
// and HTTP client. Tests substitute all of them.
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	// HTTPClient is used for the backend and the geocoder. Defaults
	// to a client with a 30 second timeout.
	HTTPClient *http.Client
	// Logger overrides the command logger.
	Logger *slog.Logger
}

// DefaultEnvironment is the real process environment.
func DefaultEnvironment() *Environment {
	return &Environment{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Getenv:     os.Getenv,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (env *Environment) logger(verbose bool) *slog.Logger {
	if env.Logger != nil {
		return env.Logger
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return cli.NewCommandLogger(level)
}

// connectionParams are the flags every command that talks to the
// backend accepts.
type connectionParams struct {
	ConfigPath string        `flag:"config" desc:"configuration file (default $CROWDSYNC_CONFIG)"`
	Timeout    time.Duration `flag:"timeout" desc:"time limit for backend calls" default:"30s"`
	Verbose    bool          `flag:"verbose,v" desc:"log debug detail to stderr"`
}

// loadConfig reads the file named by --config or CROWDSYNC_CONFIG, or
// builds a configuration from CROWDSYNC_* variables when neither is
// set.
func loadConfig(env *Environment, path string) (*config.Config, error) {
	if path == "" {
		path = env.Getenv("CROWDSYNC_CONFIG")
	}
	var cfg *config.Config
	if path == "" {
		cfg = config.FromEnvironment()
	} else {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Validation("invalid configuration:\n%w", err).
			WithHint("Run 'crowdsync doctor' for details.")
	}
	return cfg, nil
}

// app is the object graph one command invocation runs against.
type app struct {
	env         *Environment
	config      *config.Config
	logger      *slog.Logger
	credentials *credstore.Store
	client      *provider.Client
	store       docstore.Store
	sqlite      *docstore.SQLite
	session     *session.Store
	repository  *report.Repository
}

func openApp(env *Environment, params connectionParams) (*app, error) {
	cfg, err := loadConfig(env, params.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger := env.logger(params.Verbose)

	if err := cfg.EnsurePaths(); err != nil {
		return nil, cli.Internal("%w", err)
	}
	credentialDirectory := cfg.Paths.State
	if override := env.Getenv("CROWDSYNC_SESSION_DIR"); override != "" {
		credentialDirectory = override
	}
	credentials, err := credstore.Open(credentialDirectory, logger)
	if err != nil {
		return nil, cli.Internal("%w", err)
	}

	client, err := provider.NewClient(provider.ClientConfig{
		Endpoint:    cfg.Provider.Endpoint,
		ProjectID:   cfg.Provider.ProjectID,
		HTTPClient:  env.HTTPClient,
		Logger:      logger,
		Credentials: credentials,
	})
	if err != nil {
		return nil, cli.Validation("%w", err)
	}

	a := &app{env: env, config: cfg, logger: logger, credentials: credentials, client: client}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		a.sqlite, err = docstore.OpenSQLite(docstore.SQLiteConfig{Path: cfg.Store.SQLitePath, Logger: logger})
		if err != nil {
			return nil, cli.Internal("%w", err)
		}
		a.store = a.sqlite
	default:
		a.store, err = docstore.NewRemote(docstore.RemoteConfig{
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
			return nil, cli.Validation("%w", err)
		}
	}

	a.session, err = session.New(session.Config{
		Account:         client,
		CallbackURL:     cfg.App.CallbackURL(),
		Logger:          logger,
		RefreshInterval: cfg.Session.RefreshInterval,
	})
	if err != nil {
		a.Close()
		return nil, cli.Internal("%w", err)
	}

	a.repository, err = report.NewRepository(report.RepositoryConfig{
		Store:        a.store,
		Identity:     a.session,
		Logger:       logger,
		PageSize:     cfg.Feed.PageSize,
		CommentLimit: cfg.Feed.CommentLimit,
	})
	if err != nil {
		a.Close()
		return nil, cli.Internal("%w", err)
	}
	return a, nil
}

// Close releases the session store and the local database.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn("closing local store", "error", err)
		}
	}
}

// context returns a context cancelled by Ctrl-C or after timeout.
// A zero timeout means no limit.
func (a *app) context(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// signedIn runs the initial session check and fails with a hint when
// nobody is signed in.
func (a *app) signedIn(ctx context.Context) (session.Identity, error) {
	a.session.CheckSession(ctx)
	identity, ok := a.session.Current()
	if !ok {
		return session.Identity{}, notSignedIn()
	}
	return identity, nil
}

func (a *app) verifier() (*callback.Verifier, error) {
	verifier, err := callback.NewVerifier(callback.VerifierConfig{
		Redeemer: a.client,
		Session:  a.session,
		HomePath: a.config.App.HomePath,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	return verifier, nil
}

func (a *app) resolver() (*locality.Resolver, error) {
	geocoder, err := locality.NewGeoNames(locality.GeoNamesConfig{
		BaseURL:    a.config.Geocoder.BaseURL,
		Username:   a.config.Geocoder.Username,
		Country:    a.config.Geocoder.Country,
		MaxRows:    a.config.Geocoder.MaxRows,
		HTTPClient: a.env.HTTPClient,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, cli.Validation("%w", err).
			WithHint("Set geocoder.username in the configuration file to your GeoNames account.")
	}
	return locality.NewResolver(geocoder, a.logger), nil
}

// controller builds a feed controller whose notifications are printed
// to stderr.
func (a *app) controller() (*feed.Controller, error) {
	controller, err := feed.New(feed.Config{
		Identity:   a.session,
		Repository: a.repository,
		Notifier:   a.printNotifier(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	return controller, nil
}

func (a *app) printNotifier() feed.Notifier {
	return feed.NotifierFunc(func(notification feed.Notification) {
		fmt.Fprintln(a.env.Stderr, feedui.DefaultTheme.Notification(notification))
	})
}

func notSignedIn() error {
	return cli.Forbidden("not signed in").WithHint("Run 'crowdsync login <email>' and open the link.")
}

// classify maps an error to a CLI category by what it means to the
// user, keeping the original chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *cli.ToolError
	if errors.As(err, &toolErr) {
		return err
	}

	status := provider.StatusCode(err)
	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, docstore.ErrUnauthenticated),
		status == http.StatusUnauthorized:
		return &cli.ToolError{Category: cli.CategoryForbidden, Err: err,
			Hint: "Run 'crowdsync login <email>' and open the link."}
	case status == http.StatusForbidden:
		return cli.Categorize(cli.CategoryForbidden, err)
	case errors.Is(err, report.ErrAlreadyReported), errors.Is(err, docstore.ErrConflict):
		return cli.Categorize(cli.CategoryConflict, err)
	case errors.Is(err, report.ErrInvalidDraft),
		errors.Is(err, report.ErrEmptyComment),
		errors.Is(err, locality.ErrInvalidPincode),
		errors.Is(err, session.ErrInvalidEmail),
		errors.Is(err, callback.ErrMissingParameters):
		return cli.Categorize(cli.CategoryValidation, err)
	case errors.Is(err, locality.ErrPincodeNotFound),
		errors.Is(err, docstore.ErrNotFound),
		status == http.StatusNotFound:
		return cli.Categorize(cli.CategoryNotFound, err)
	case errors.Is(err, locality.ErrLookupFailed),
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError,
		cli.IsTransient(err):
		return cli.Categorize(cli.CategoryTransient, err)
	}
	return cli.Categorize(cli.CategoryInternal, err)
}

// handled converts an error the controller already reported through
// the notifier into a silent exit with the error's category code.
func handled(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *cli.ToolError
	if errors.As(classify(err), &toolErr) {
		return &cli.ExitError{Code: toolErr.ExitCode()}
	}
	return &cli.ExitError{Code: 1}
}
