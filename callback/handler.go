// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crowdsync/crowdsync/session"
)

// IdentitySource reports who is signed in. *session.Store satisfies
// it.
type IdentitySource interface {
	Current() (session.Identity, bool)
}

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Verifier *Verifier
	// Identity is shown on the home page. Optional.
	Identity IdentitySource
	// Mode is used for CallbackPath. Defaults to ModeMagicURL.
	Mode            Mode
	CallbackPath    string
	VerifyEmailPath string
	HomePath        string
	// OnAttempt is called with every terminal attempt.
	OnAttempt func(*Attempt)
	Logger    *slog.Logger
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>CrowdSync</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Hint}}<p>{{.Hint}}</p>{{end}}
</body>
</html>
`))

type page struct {
	Title   string
	Message string
	Hint    string
}

// Validate checks that the routes are usable together. The three
// paths must differ; a ServeMux panics on duplicate patterns.
func (cfg HandlerConfig) Validate() error {
	if cfg.Verifier == nil {
		return fmt.Errorf("callback: Verifier is required")
	}
	if !strings.HasPrefix(cfg.CallbackPath, "/") {
		return fmt.Errorf("callback: CallbackPath %q must start with /", cfg.CallbackPath)
	}
	seen := map[string]string{cfg.CallbackPath: "CallbackPath"}
	for _, route := range []struct{ name, path string }{
		{"VerifyEmailPath", cfg.VerifyEmailPath},
		{"HomePath", cfg.HomePath},
	} {
		if route.path == "" {
			continue
		}
		if other, taken := seen[route.path]; taken {
			return fmt.Errorf("callback: %s and %s are both %q", other, route.name, route.path)
		}
		seen[route.path] = route.name
	}
	return nil
}

// NewHandler routes the sign-in callback, the email verification
// link, and a minimal home page. cfg must pass Validate.
func NewHandler(cfg HandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeMagicURL
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+cfg.CallbackPath, func(writer http.ResponseWriter, request *http.Request) {
		serveAttempt(writer, request, cfg, mode, logger)
	})
	if cfg.VerifyEmailPath != "" {
		mux.HandleFunc("GET "+cfg.VerifyEmailPath, func(writer http.ResponseWriter, request *http.Request) {
			serveAttempt(writer, request, cfg, ModeEmailVerification, logger)
		})
	}
	if cfg.HomePath != "" {
		homePattern := "GET " + cfg.HomePath
		if cfg.HomePath == "/" {
			homePattern = "GET /{$}"
		}
		mux.HandleFunc(homePattern, func(writer http.ResponseWriter, request *http.Request) {
			view := page{Title: "CrowdSync", Message: "You are not signed in.", Hint: "Run crowdsync login <email> to get a sign-in link."}
			if cfg.Identity != nil {
				if identity, ok := cfg.Identity.Current(); ok {
					view.Message = "Welcome, " + identity.DisplayName() + "."
					view.Hint = "You can close this window and return to the terminal."
				}
			}
			render(writer, http.StatusOK, view, logger)
		})
	}
	return mux
}

func serveAttempt(writer http.ResponseWriter, request *http.Request, cfg HandlerConfig, mode Mode, logger *slog.Logger) {
	attempt := cfg.Verifier.Verify(request.Context(), mode, request.URL.Query())
	if cfg.OnAttempt != nil {
		cfg.OnAttempt(attempt)
	}

	if attempt.Status == StatusError {
		render(writer, http.StatusBadRequest, page{
			Title:   "Verification failed",
			Message: attempt.Message(),
			Hint:    "Request a new link and try again.",
		}, logger)
		return
	}
	if target := attempt.TakeRedirect(); target != "" {
		http.Redirect(writer, request, target, http.StatusSeeOther)
		return
	}
	render(writer, http.StatusOK, page{Title: "Done", Message: attempt.Message()}, logger)
}

func render(writer http.ResponseWriter, status int, view page, logger *slog.Logger) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Header().Set("Cache-Control", "no-store")
	writer.WriteHeader(status)
	if err := pageTemplate.Execute(writer, view); err != nil {
		logger.Warn("rendering page failed", "error", err)
	}
}
