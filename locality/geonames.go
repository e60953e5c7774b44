// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package locality

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/crowdsync/crowdsync/lib/netutil"
	"github.com/crowdsync/crowdsync/lib/version"
)

// GeoNamesConfig configures a GeoNames postal code client.
type GeoNamesConfig struct {
	// BaseURL is the service root, e.g. "https://secure.geonames.org".
	BaseURL string
	// Username is the GeoNames account the free API requires.
	Username string
	// Country restricts results (ISO 3166 alpha-2). Defaults to "IN".
	Country string
	// MaxRows caps results. Defaults to 10.
	MaxRows    int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GeoNames implements Geocoder with the postalCodeSearchJSON endpoint.
type GeoNames struct {
	baseURL    string
	username   string
	country    string
	maxRows    int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeoNames validates cfg and returns a client.
func NewGeoNames(cfg GeoNamesConfig) (*GeoNames, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("locality: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("locality: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("locality: Username is required")
	}
	country := cfg.Country
	if country == "" {
		country = "IN"
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeoNames{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		country:    country,
		maxRows:    maxRows,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type postalCodeResponse struct {
	PostalCodes []struct {
		PlaceName  string  `json:"placeName"`
		PostalCode string  `json:"postalCode"`
		Latitude   float64 `json:"lat"`
		Longitude  float64 `json:"lng"`
	} `json:"postalCodes"`
	// GeoNames reports account and quota problems with a 200 and a
	// status object.
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

// Lookup returns the places for pincode.
func (g *GeoNames) Lookup(ctx context.Context, pincode string) ([]Locality, error) {
	query := url.Values{
		"postalcode": {pincode},
		"country":    {g.country},
		"maxRows":    {strconv.Itoa(g.maxRows)},
		"username":   {g.username},
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/postalCodeSearchJSON?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geonames: building request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	response, err := g.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("geonames: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geonames: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var decoded postalCodeResponse
	if err := netutil.DecodeResponse(response.Body, &decoded); err != nil {
		return nil, fmt.Errorf("geonames: decoding response: %w", err)
	}
	if decoded.Status != nil {
		return nil, fmt.Errorf("geonames: %s (code %d)", decoded.Status.Message, decoded.Status.Value)
	}

	localities := make([]Locality, 0, len(decoded.PostalCodes))
	for _, entry := range decoded.PostalCodes {
		localities = append(localities, Locality{
			Name:        entry.PlaceName,
			Coordinates: [2]float64{entry.Latitude, entry.Longitude},
		})
	}
	g.logger.Debug("geonames lookup", "pincode", pincode, "results", len(localities))
	return localities, nil
}
