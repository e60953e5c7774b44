// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Store backends.
const (
	BackendProvider = "provider"
	BackendSQLite   = "sqlite"
)

// Config is the client configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Provider configures the identity and document backend.
	Provider ProviderConfig `yaml:"provider"`

	// App configures the public URLs the magic link points back to.
	App AppConfig `yaml:"app"`

	// Geocoder configures pincode lookups.
	Geocoder GeocoderConfig `yaml:"geocoder"`

	// Store selects where report documents live.
	Store StoreConfig `yaml:"store"`

	Paths   PathsConfig   `yaml:"paths"`
	Session SessionConfig `yaml:"session"`
	Feed    FeedConfig    `yaml:"feed"`

	// Per-environment overrides, applied after the base file is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can differ per environment.
type ConfigOverrides struct {
	Provider *ProviderConfig `yaml:"provider,omitempty"`
	App      *AppConfig      `yaml:"app,omitempty"`
	Geocoder *GeocoderConfig `yaml:"geocoder,omitempty"`
	Store    *StoreConfig    `yaml:"store,omitempty"`
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
}

// ProviderConfig configures the backend REST API.
type ProviderConfig struct {
	// Endpoint is the API root including the version segment, for
	// example https://cloud.appwrite.io/v1.
	Endpoint string `yaml:"endpoint"`

	// ProjectID is sent as X-Appwrite-Project on every request.
	ProjectID string `yaml:"project_id"`

	// DatabaseID holds the four collections below.
	DatabaseID string `yaml:"database_id"`

	Collections CollectionsConfig `yaml:"collections"`
}

// CollectionsConfig maps logical collection names to backend IDs.
type CollectionsConfig struct {
	Profiles   string `yaml:"profiles"`
	Reports    string `yaml:"reports"`
	Duplicates string `yaml:"duplicates"`
	Comments   string `yaml:"comments"`
}

// AppConfig configures the client's own URLs.
type AppConfig struct {
	// BaseURL is where the callback listener is reachable. Magic
	// links point at BaseURL + CallbackPath.
	BaseURL         string `yaml:"base_url"`
	CallbackPath    string `yaml:"callback_path"`
	VerifyEmailPath string `yaml:"verify_email_path"`
	HomePath        string `yaml:"home_path"`
}

// CallbackURL is the absolute magic-link return address.
func (a AppConfig) CallbackURL() string {
	return strings.TrimRight(a.BaseURL, "/") + a.CallbackPath
}

// VerifyEmailURL is the absolute email-verification return address.
func (a AppConfig) VerifyEmailURL() string {
	return strings.TrimRight(a.BaseURL, "/") + a.VerifyEmailPath
}

// GeocoderConfig configures the postal code search service.
type GeocoderConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Country  string `yaml:"country"`
	MaxRows  int    `yaml:"max_rows"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Backend is "provider" (remote collections) or "sqlite" (local
	// single-user store, useful offline and in demos).
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// State holds the sealed session credential and the local store.
	State string `yaml:"state"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// RefreshInterval re-checks the session periodically while a
	// long-running command (view, serve) is open. Zero disables it.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// MaxPageSize bounds feed.page_size.
const MaxPageSize = 10

// FeedConfig configures feed queries.
type FeedConfig struct {
	PageSize     int `yaml:"page_size"`
	CommentLimit int `yaml:"comment_limit"`
}

// Default returns the base configuration that a file is merged into.
func Default() *Config {
	stateDirectory := "${HOME}/.local/state/crowdsync"
	if configDirectory, err := os.UserConfigDir(); err == nil {
		stateDirectory = filepath.Join(configDirectory, "crowdsync")
	}

	return &Config{
		Environment: Development,
		Provider: ProviderConfig{
			Endpoint:   "https://cloud.appwrite.io/v1",
			DatabaseID: "crowdsync",
			Collections: CollectionsConfig{
				Profiles:   "profiles",
				Reports:    "posts",
				Duplicates: "duplicates",
				Comments:   "comments",
			},
		},
		App: AppConfig{
			BaseURL:         "http://127.0.0.1:8787",
			CallbackPath:    "/auth/callback",
			VerifyEmailPath: "/verify-email",
			HomePath:        "/",
		},
		Geocoder: GeocoderConfig{
			BaseURL: "https://secure.geonames.org",
			Country: "IN",
			MaxRows: 10,
		},
		Store: StoreConfig{
			Backend:    BackendProvider,
			SQLitePath: "${CROWDSYNC_STATE}/documents.db",
		},
		Paths: PathsConfig{
			State: stateDirectory,
		},
		Session: SessionConfig{
			RefreshInterval: 5 * time.Minute,
		},
		Feed: FeedConfig{
			PageSize:     10,
			CommentLimit: 50,
		},
	}
}

// Load loads the file named by CROWDSYNC_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("CROWDSYNC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CROWDSYNC_CONFIG environment variable not set; " +
			"set it to the path of your crowdsync.yaml, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. YAML is the native format;
// files ending in .json or .jsonc have comments and trailing commas
// stripped first.
//
// Environment variables never override file values. They only take
// effect through ${VAR} and ${VAR:-default} references in the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// FromEnvironment builds a configuration with no file at all, taking
// the three deployment values from CROWDSYNC_ENDPOINT,
// CROWDSYNC_PROJECT_ID, and CROWDSYNC_APP_URL. Used when neither
// --config nor CROWDSYNC_CONFIG is given.
func FromEnvironment() *Config {
	cfg := Default()
	if endpoint := os.Getenv("CROWDSYNC_ENDPOINT"); endpoint != "" {
		cfg.Provider.Endpoint = endpoint
	}
	cfg.Provider.ProjectID = os.Getenv("CROWDSYNC_PROJECT_ID")
	if appURL := os.Getenv("CROWDSYNC_APP_URL"); appURL != "" {
		cfg.App.BaseURL = appURL
	}
	cfg.expandVariables()
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if provider := overrides.Provider; provider != nil {
		setIfPresent(&c.Provider.Endpoint, provider.Endpoint)
		setIfPresent(&c.Provider.ProjectID, provider.ProjectID)
		setIfPresent(&c.Provider.DatabaseID, provider.DatabaseID)
		setIfPresent(&c.Provider.Collections.Profiles, provider.Collections.Profiles)
		setIfPresent(&c.Provider.Collections.Reports, provider.Collections.Reports)
		setIfPresent(&c.Provider.Collections.Duplicates, provider.Collections.Duplicates)
		setIfPresent(&c.Provider.Collections.Comments, provider.Collections.Comments)
	}

	if app := overrides.App; app != nil {
		setIfPresent(&c.App.BaseURL, app.BaseURL)
		setIfPresent(&c.App.CallbackPath, app.CallbackPath)
		setIfPresent(&c.App.VerifyEmailPath, app.VerifyEmailPath)
		setIfPresent(&c.App.HomePath, app.HomePath)
	}

	if geocoder := overrides.Geocoder; geocoder != nil {
		setIfPresent(&c.Geocoder.BaseURL, geocoder.BaseURL)
		setIfPresent(&c.Geocoder.Username, geocoder.Username)
		setIfPresent(&c.Geocoder.Country, geocoder.Country)
		if geocoder.MaxRows > 0 {
			c.Geocoder.MaxRows = geocoder.MaxRows
		}
	}

	if store := overrides.Store; store != nil {
		setIfPresent(&c.Store.Backend, store.Backend)
		setIfPresent(&c.Store.SQLitePath, store.SQLitePath)
	}

	if paths := overrides.Paths; paths != nil {
		setIfPresent(&c.Paths.State, paths.State)
	}
}

func setIfPresent(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["CROWDSYNC_STATE"] = c.Paths.State

	c.Store.SQLitePath = expandVars(c.Store.SQLitePath, vars)
	c.Provider.Endpoint = expandVars(c.Provider.Endpoint, vars)
	c.Provider.ProjectID = expandVars(c.Provider.ProjectID, vars)
	c.App.BaseURL = expandVars(c.App.BaseURL, vars)
	c.Geocoder.BaseURL = expandVars(c.Geocoder.BaseURL, vars)
	c.Geocoder.Username = expandVars(c.Geocoder.Username, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Names in vars win
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	errs = append(errs, validateURL("provider.endpoint", c.Provider.Endpoint))
	if c.Provider.ProjectID == "" {
		errs = append(errs, fmt.Errorf("provider.project_id is required"))
	}
	if c.Provider.DatabaseID == "" {
		errs = append(errs, fmt.Errorf("provider.database_id is required"))
	}
	collections := map[string]string{
		"profiles":   c.Provider.Collections.Profiles,
		"reports":    c.Provider.Collections.Reports,
		"duplicates": c.Provider.Collections.Duplicates,
		"comments":   c.Provider.Collections.Comments,
	}
	for name, id := range collections {
		if id == "" {
			errs = append(errs, fmt.Errorf("provider.collections.%s is required", name))
		}
	}

	errs = append(errs, validateURL("app.base_url", c.App.BaseURL))
	for name, path := range map[string]string{
		"app.callback_path":     c.App.CallbackPath,
		"app.verify_email_path": c.App.VerifyEmailPath,
		"app.home_path":         c.App.HomePath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /", name))
		}
	}
	if c.App.CallbackPath == c.App.VerifyEmailPath || c.App.CallbackPath == c.App.HomePath ||
		c.App.VerifyEmailPath == c.App.HomePath {
		errs = append(errs, fmt.Errorf("app.callback_path, app.verify_email_path, and app.home_path must differ"))
	}

	errs = append(errs, validateURL("geocoder.base_url", c.Geocoder.BaseURL))

	switch c.Store.Backend {
	case BackendProvider:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("store.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: %s, %s", BackendProvider, BackendSQLite))
	}

	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}
	if c.Session.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("session.refresh_interval must not be negative"))
	}
	if c.Feed.PageSize <= 0 || c.Feed.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("feed.page_size must be between 1 and %d", MaxPageSize))
	}
	if c.Feed.CommentLimit <= 0 {
		errs = append(errs, fmt.Errorf("feed.comment_limit must be positive"))
	}

	return errors.Join(errs...)
}

func validateURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", field)
	}
	return nil
}

// EnsurePaths creates the state directory with owner-only permissions.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.State, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.State, err)
	}
	if c.Store.Backend == BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Store.SQLitePath), 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(c.Store.SQLitePath), err)
		}
	}
	return nil
}
