// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/crowdsync/crowdsync/cmd/crowdsync/cli"
	"github.com/crowdsync/crowdsync/lib/credstore"
	"github.com/crowdsync/crowdsync/provider/providertest"
)

// harness runs commands against a fake backend, a fake GeoNames, and
// a sqlite document store in a temporary directory.
type harness struct {
	t          *testing.T
	server     *providertest.Server
	stateDir   string
	configPath string
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	env        *Environment
}

const testConfig = `environment: development
provider:
  endpoint: %s
  project_id: %s
  database_id: crowdsync
  collections:
    profiles: profiles
    reports: posts
    duplicates: duplicates
    comments: comments
app:
  base_url: http://127.0.0.1:8787
  callback_path: /auth/callback
  verify_email_path: /verify-email
  home_path: /
geocoder:
  base_url: %s
  username: crowdsync-test
store:
  backend: sqlite
  sqlite_path: %s
paths:
  state: %s
session:
  refresh_interval: 0s
`

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, server: providertest.NewServer(t)}

	geonames := httptest.NewServer(http.HandlerFunc(serveGeoNames))
	t.Cleanup(geonames.Close)

	directory := t.TempDir()
	h.stateDir = filepath.Join(directory, "state")
	h.writeConfig(fmt.Sprintf(testConfig, h.server.Endpoint(), h.server.ProjectID, geonames.URL,
		filepath.Join(directory, "documents.db"), h.stateDir))

	h.env = &Environment{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		Getenv: func(name string) string {
			if name == "CROWDSYNC_CONFIG" {
				return h.configPath
			}
			return ""
		},
		HTTPClient: http.DefaultClient,
		Logger:     slog.New(slog.DiscardHandler),
	}
	return h
}

func (h *harness) writeConfig(content string) {
	h.t.Helper()
	h.configPath = filepath.Join(h.t.TempDir(), "crowdsync.yaml")
	if err := os.WriteFile(h.configPath, []byte(content), 0o600); err != nil {
		h.t.Fatal(err)
	}
}

// run executes one command line with fresh output buffers.
func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	return NewRoot(h.env).Execute(args)
}

// mustRun fails the test when the command fails.
func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	if err := h.run(args...); err != nil {
		h.t.Fatalf("%v: %v\nstderr: %s", args, err, h.stderr.String())
	}
	return h.stdout.String()
}

// signIn stores a session for email as if its magic link had been
// redeemed, replacing any stored session.
func (h *harness) signIn(email, name string) string {
	h.t.Helper()
	userID, secret := h.server.SignIn(email, name)
	store, err := credstore.Open(h.stateDir, nil)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := store.Save(secret); err != nil {
		h.t.Fatal(err)
	}
	return userID
}

// exitCode is what main would exit with for err.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var toolErr *cli.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.ExitCode()
	}
	return 1
}

func serveGeoNames(writer http.ResponseWriter, request *http.Request) {
	switch request.URL.Query().Get("postalcode") {
	case "560001":
		writer.Write([]byte(`{"postalCodes":[
			{"placeName":"MG Road","postalCode":"560001","lat":12.97,"lng":77.59},
			{"placeName":"Shivajinagar","postalCode":"560001","lat":12.985,"lng":77.605}
		]}`))
	case "400001":
		writer.Write([]byte(`{"postalCodes":[
			{"placeName":"Fort","postalCode":"400001","lat":18.93,"lng":72.83}
		]}`))
	default:
		writer.Write([]byte(`{"postalCodes":[]}`))
	}
}
