// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CreateMagicURLToken asks the backend to email a sign-in link to
// email. The link points at redirectURL with userId and secret query
// parameters appended. userID is a fresh unique ID; the backend
// reuses the existing account when the address is already known.
func (c *Client) CreateMagicURLToken(ctx context.Context, userID, email, redirectURL string) (*Token, error) {
	if email == "" {
		return nil, fmt.Errorf("provider: email is required for magic link")
	}
	request := map[string]any{
		"userId": userID,
		"email":  email,
		"url":    redirectURL,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/account/tokens/magic-url", request, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: magic link request failed: %w", err)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("provider: failed to parse token response: %w", err)
	}
	c.logger.Info("magic link sent", "user_id", token.UserID)
	return &token, nil
}

// UpdateMagicURLSession redeems a magic-link (userId, secret) pair
// for a session. The secret is single-use.
func (c *Client) UpdateMagicURLSession(ctx context.Context, userID, secret string) (*Session, error) {
	return c.redeem(ctx, http.MethodPut, "/account/sessions/magic-url", userID, secret)
}

// CreateSession redeems any one-time token (magic URL, email OTP,
// phone) for a session.
func (c *Client) CreateSession(ctx context.Context, userID, secret string) (*Session, error) {
	return c.redeem(ctx, http.MethodPost, "/account/sessions/token", userID, secret)
}

func (c *Client) redeem(ctx context.Context, method, path, userID, secret string) (*Session, error) {
	if userID == "" || secret == "" {
		return nil, fmt.Errorf("provider: userId and secret are required")
	}
	request := map[string]any{"userId": userID, "secret": secret}

	response, body, err := c.doRequestResponse(ctx, method, path, request, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: session creation failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("provider: failed to parse session response: %w", err)
	}

	sessionSecret, err := c.captureSessionSecret(response, &session)
	if err != nil {
		return nil, err
	}
	if err := c.storeSecret(sessionSecret); err != nil {
		return nil, err
	}

	c.logger.Info("session created",
		"user_id", session.UserID,
		"session_id", session.ID,
		"expire", session.Expire,
	)
	return &session, nil
}

// Get returns the account behind the current session. Without a
// session it fails with ErrTypeUnauthorized without a network call.
func (c *Client) Get(ctx context.Context) (*User, error) {
	secret, err := c.currentSecret()
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, &Error{
			Code:       http.StatusUnauthorized,
			Type:       ErrTypeUnauthorized,
			Message:    "no session",
			StatusCode: http.StatusUnauthorized,
		}
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/account", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: get account failed: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("provider: failed to parse account response: %w", err)
	}
	return &user, nil
}

// DeleteSession ends a session. sessionID "current" ends the session
// this client holds and clears the stored credential. A session the
// backend no longer knows about counts as deleted.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = "current"
	}

	_, err := c.doRequest(ctx, http.MethodDelete, "/account/sessions/"+url.PathEscape(sessionID), nil, nil)
	if err != nil && !IsErrorType(err, ErrTypeUserSessionNotFound) && StatusCode(err) != http.StatusUnauthorized {
		return fmt.Errorf("provider: delete session failed: %w", err)
	}

	if sessionID == "current" {
		if clearErr := c.clearSecret(); clearErr != nil {
			return clearErr
		}
	}
	c.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// CreateVerification emails a verification link for the current
// account pointing at redirectURL.
func (c *Client) CreateVerification(ctx context.Context, redirectURL string) (*Token, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/account/verification", map[string]any{"url": redirectURL}, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: verification request failed: %w", err)
	}
	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("provider: failed to parse token response: %w", err)
	}
	return &token, nil
}

// UpdateVerification confirms an email address with the (userId,
// secret) pair from a verification link. No session is required.
func (c *Client) UpdateVerification(ctx context.Context, userID, secret string) (*Token, error) {
	if userID == "" || secret == "" {
		return nil, fmt.Errorf("provider: userId and secret are required")
	}
	body, err := c.doRequest(ctx, http.MethodPut, "/account/verification",
		map[string]any{"userId": userID, "secret": secret}, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: email verification failed: %w", err)
	}
	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("provider: failed to parse token response: %w", err)
	}
	c.logger.Info("email verified", "user_id", token.UserID)
	return &token, nil
}
