// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/crowdsync/crowdsync/provider"
)

// Status is the state of an Attempt. Success and Error are terminal.
type Status string

const (
	StatusVerifying Status = "verifying"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Mode selects the backend call that redeems a (userId, secret) pair.
type Mode string

const (
	// ModeMagicURL completes a magic-link sign-in.
	ModeMagicURL Mode = "magic-url"
	// ModeToken exchanges the pair through the generic token session
	// endpoint. The result is the same session as ModeMagicURL.
	ModeToken Mode = "token"
	// ModeEmailVerification confirms an email address. It creates no
	// session.
	ModeEmailVerification Mode = "email-verification"
)

// ErrMissingParameters is the Attempt error when userId or secret is
// absent. No backend call is made in that case.
var ErrMissingParameters = errors.New("callback: link is missing userId or secret")

// Redeemer is the slice of the backend account API used to redeem
// links. *provider.Client satisfies it.
type Redeemer interface {
	UpdateMagicURLSession(ctx context.Context, userID, secret string) (*provider.Session, error)
	CreateSession(ctx context.Context, userID, secret string) (*provider.Session, error)
	UpdateVerification(ctx context.Context, userID, secret string) (*provider.Token, error)
}

// SessionRefresher is notified after a sign-in succeeds.
// *session.Store satisfies it.
type SessionRefresher interface {
	CheckSession(ctx context.Context)
}

// Attempt is one pass through the verifier.
type Attempt struct {
	Mode   Mode
	Status Status
	// Err is set when Status is StatusError.
	Err error
	// Redirect is where to send the user after success. Empty for
	// email verification.
	Redirect string

	mu         sync.Mutex
	redirected bool
}

// Message is the text shown for the attempt.
func (a *Attempt) Message() string {
	switch a.Status {
	case StatusSuccess:
		if a.Mode == ModeEmailVerification {
			return "Your email address is verified."
		}
		return "You are signed in."
	case StatusError:
		if a.Err != nil {
			return a.Err.Error()
		}
		return "Verification failed."
	}
	return "Verifying..."
}

// TakeRedirect returns the redirect target the first time it is
// called after success, and "" afterwards.
func (a *Attempt) TakeRedirect() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Status != StatusSuccess || a.Redirect == "" || a.redirected {
		return ""
	}
	a.redirected = true
	return a.Redirect
}

// VerifierConfig holds the dependencies of a Verifier.
type VerifierConfig struct {
	Redeemer Redeemer
	// Session is refreshed after a sign-in. Optional.
	Session SessionRefresher
	// HomePath is the redirect target after a sign-in. Defaults to "/".
	HomePath string
	Logger   *slog.Logger
}

// Verifier redeems the (userId, secret) pair carried by a magic link
// or verification link. It keeps no record of redeemed secrets; the
// backend rejects reuse.
type Verifier struct {
	redeemer Redeemer
	session  SessionRefresher
	homePath string
	logger   *slog.Logger
}

// NewVerifier validates cfg and returns a Verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Redeemer == nil {
		return nil, fmt.Errorf("callback: Redeemer is required")
	}
	homePath := cfg.HomePath
	if homePath == "" {
		homePath = "/"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Verifier{
		redeemer: cfg.Redeemer,
		session:  cfg.Session,
		homePath: homePath,
		logger:   logger,
	}, nil
}

// Verify runs one attempt to completion. It never retries.
func (v *Verifier) Verify(ctx context.Context, mode Mode, params url.Values) *Attempt {
	attempt := &Attempt{Mode: mode, Status: StatusVerifying}

	userID, secret := params.Get("userId"), params.Get("secret")
	if userID == "" || secret == "" {
		return v.fail(attempt, ErrMissingParameters)
	}

	var err error
	switch mode {
	case ModeMagicURL:
		_, err = v.redeemer.UpdateMagicURLSession(ctx, userID, secret)
	case ModeToken:
		_, err = v.redeemer.CreateSession(ctx, userID, secret)
	case ModeEmailVerification:
		_, err = v.redeemer.UpdateVerification(ctx, userID, secret)
	default:
		err = fmt.Errorf("callback: unknown mode %q", mode)
	}
	if err != nil {
		v.logger.Warn("link redemption failed", append([]any{"mode", mode, "user_id", userID}, provider.LogAttrs(err)...)...)
		return v.fail(attempt, redemptionError(err))
	}

	attempt.Status = StatusSuccess
	if mode != ModeEmailVerification {
		if v.session != nil {
			v.session.CheckSession(ctx)
		}
		attempt.Redirect = v.homePath
	}
	v.logger.Info("link redeemed", "mode", mode, "user_id", userID)
	return attempt
}

// VerifyURL parses raw and verifies its query parameters.
func (v *Verifier) VerifyURL(ctx context.Context, mode Mode, raw string) *Attempt {
	parsed, err := url.Parse(raw)
	if err != nil {
		return v.fail(&Attempt{Mode: mode}, fmt.Errorf("callback: invalid link: %w", err))
	}
	return v.Verify(ctx, mode, parsed.Query())
}

func (v *Verifier) fail(attempt *Attempt, err error) *Attempt {
	attempt.Status = StatusError
	attempt.Err = err
	return attempt
}

// redemptionError keeps the backend's message, which is what users
// should see ("Invalid token passed in the request."), while leaving
// the full error in the chain.
func redemptionError(err error) error {
	var providerErr *provider.Error
	if errors.As(err, &providerErr) && providerErr.Message != "" {
		return &RedemptionError{Message: providerErr.Message, Err: err}
	}
	return &RedemptionError{Message: "Could not reach the server. Request a new link and try again.", Err: err}
}

// RedemptionError is the Attempt error when the backend rejects or
// cannot be asked to redeem a link.
type RedemptionError struct {
	Message string
	Err     error
}

func (e *RedemptionError) Error() string { return e.Message }

func (e *RedemptionError) Unwrap() error { return e.Err }
