// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package locality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
)

var (
	// ErrInvalidPincode means the input is not six digits. No lookup
	// is made.
	ErrInvalidPincode = errors.New("locality: pincode must be 6 digits")
	// ErrPincodeNotFound means the geocoder knows no places for the
	// pincode.
	ErrPincodeNotFound = errors.New("locality: pincode not found")
	// ErrLookupFailed wraps network and geocoder failures.
	ErrLookupFailed = errors.New("locality: lookup failed")
)

var pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidPincode reports whether s is exactly six ASCII digits.
func ValidPincode(s string) bool {
	return pincodePattern.MatchString(s)
}

// Locality is a named place with [latitude, longitude] coordinates.
// The JSON form is what reports store, one string per locality.
type Locality struct {
	Name        string     `json:"name"`
	Coordinates [2]float64 `json:"coords"`
}

func (l Locality) Latitude() float64  { return l.Coordinates[0] }
func (l Locality) Longitude() float64 { return l.Coordinates[1] }

// MapURL links to the place on OpenStreetMap.
func (l Locality) MapURL() string {
	lat := strconv.FormatFloat(l.Latitude(), 'f', -1, 64)
	lng := strconv.FormatFloat(l.Longitude(), 'f', -1, 64)
	return "https://www.openstreetmap.org/?mlat=" + lat + "&mlon=" + lng + "#map=15/" + lat + "/" + lng
}

// Geocoder looks up the places sharing a postal code.
type Geocoder interface {
	Lookup(ctx context.Context, pincode string) ([]Locality, error)
}

// Resolver validates pincodes and classifies geocoder outcomes. It
// does not cache: every call reaches the geocoder.
type Resolver struct {
	geocoder Geocoder
	logger   *slog.Logger
}

// NewResolver returns a Resolver over geocoder. A nil logger discards.
func NewResolver(geocoder Geocoder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{geocoder: geocoder, logger: logger}
}

// Resolve returns the localities for pincode, in geocoder order.
func (r *Resolver) Resolve(ctx context.Context, pincode string) ([]Locality, error) {
	if !ValidPincode(pincode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPincode, pincode)
	}
	localities, err := r.geocoder.Lookup(ctx, pincode)
	if err != nil {
		r.logger.Warn("pincode lookup failed", "pincode", pincode, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if len(localities) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPincodeNotFound, pincode)
	}
	r.logger.Debug("pincode resolved", "pincode", pincode, "localities", len(localities))
	return localities, nil
}

// UserMessage is the validation text shown for a Resolve error.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPincode):
		return "Enter a 6 digit pincode."
	case errors.Is(err, ErrPincodeNotFound):
		return "Invalid pincode. No localities found."
	default:
		return "Could not look up this pincode. Try again."
	}
}
