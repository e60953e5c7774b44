// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/crowdsync/crowdsync/lib/netutil"
	"github.com/crowdsync/crowdsync/lib/version"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Endpoint is the API root including the version segment
	// (e.g., "https://cloud.appwrite.io/v1").
	Endpoint string
	// ProjectID identifies the project on every request.
	ProjectID string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Credentials persists the session secret between runs. If nil,
	// the secret is held in memory only.
	Credentials CredentialStore
}

// Client talks to the backend's account and databases APIs. It holds
// at most one session secret, loaded lazily from the CredentialStore
// and replaced whenever a new session is created.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	projectID   string
	httpClient  *http.Client
	logger      *slog.Logger
	credentials CredentialStore

	mu            sync.Mutex
	loaded        bool
	sessionSecret string
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("provider: Endpoint is required")
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("provider: ProjectID is required")
	}

	// The string form is kept and request URLs are built by
	// concatenation, so escaped document IDs are not re-encoded.
	parsed, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("provider: invalid Endpoint %q: %w", config.Endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("provider: Endpoint %q must be http or https", config.Endpoint)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	credentials := config.Credentials
	if credentials == nil {
		credentials = &MemoryCredentials{}
	}

	return &Client{
		baseURL:     strings.TrimRight(config.Endpoint, "/"),
		projectID:   config.ProjectID,
		httpClient:  httpClient,
		logger:      logger,
		credentials: credentials,
	}, nil
}

// ProjectID returns the configured project.
func (c *Client) ProjectID() string { return c.projectID }

// HasSession reports whether a session secret is available.
func (c *Client) HasSession() (bool, error) {
	secret, err := c.currentSecret()
	if err != nil {
		return false, err
	}
	return secret != "", nil
}

// ServerVersion returns the backend version string. It needs no
// session and is used as a connectivity check.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/health/version", nil, nil)
	if err != nil {
		return "", fmt.Errorf("provider: server version failed: %w", err)
	}
	var response struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("provider: failed to parse version response: %w", err)
	}
	return response.Version, nil
}

func (c *Client) currentSecret() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.sessionSecret, nil
	}
	secret, err := c.credentials.Load()
	if err != nil {
		return "", fmt.Errorf("provider: loading session credential: %w", err)
	}
	c.sessionSecret = secret
	c.loaded = true
	return secret, nil
}

func (c *Client) storeSecret(secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.credentials.Save(secret); err != nil {
		return fmt.Errorf("provider: saving session credential: %w", err)
	}
	c.sessionSecret = secret
	c.loaded = true
	return nil
}

func (c *Client) clearSecret() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionSecret = ""
	c.loaded = true
	if err := c.credentials.Clear(); err != nil {
		return fmt.Errorf("provider: clearing session credential: %w", err)
	}
	return nil
}

// doRequest performs a JSON request and returns the response body. A
// non-2xx response is returned as *Error. The session secret, when
// present, is attached to every request; the backend ignores it on
// endpoints that do not need it.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, error) {
	_, body, err := c.doRequestResponse(ctx, method, path, requestBody, query)
	return body, err
}

func (c *Client) doRequestResponse(ctx context.Context, method, path string, requestBody any, query url.Values) (*http.Response, []byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, nil, fmt.Errorf("provider: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("provider: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set(HeaderProject, c.projectID)
	request.Header.Set(HeaderResponseFormat, ResponseFormat)

	secret, err := c.currentSecret()
	if err != nil {
		return nil, nil, err
	}
	if secret != "" {
		request.Header.Set(HeaderSession, secret)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("provider: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("provider: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return response, responseBody, nil
	}

	var providerErr Error
	if jsonErr := json.Unmarshal(responseBody, &providerErr); jsonErr != nil || providerErr.Message == "" {
		return nil, nil, fmt.Errorf("provider: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	providerErr.StatusCode = response.StatusCode

	return response, responseBody, &providerErr
}

// sessionCookieName is the cookie carrying the session secret.
func (c *Client) sessionCookieName() string {
	return "a_session_" + c.projectID
}

// captureSessionSecret extracts the session secret from a
// session-creating response. Browsers receive it as a cookie; clients
// that cannot hold third-party cookies receive the same value in the
// X-Fallback-Cookies header. A non-empty secret in the body (issued
// when the request carried an API key) is used as a last resort.
func (c *Client) captureSessionSecret(response *http.Response, session *Session) (string, error) {
	name := c.sessionCookieName()
	for _, cookie := range response.Cookies() {
		if cookie.Name == name && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	if fallback := response.Header.Get(HeaderFallbackCookies); fallback != "" {
		var cookies map[string]string
		if err := json.Unmarshal([]byte(fallback), &cookies); err == nil && cookies[name] != "" {
			return cookies[name], nil
		}
	}

	if session.Secret != "" {
		return session.Secret, nil
	}
	return "", fmt.Errorf("provider: session response for user %s carried no session secret", session.UserID)
}
