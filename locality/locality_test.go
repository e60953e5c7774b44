// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package locality

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeGeocoder answers from a table and records every lookup. If
// gates has an entry for a pincode, the lookup blocks until the gate
// is closed.
type fakeGeocoder struct {
	mu      sync.Mutex
	results map[string][]Locality
	failure error
	gates   map[string]chan struct{}
	lookups []string
}

func (f *fakeGeocoder) Lookup(ctx context.Context, pincode string) ([]Locality, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, pincode)
	gate := f.gates[pincode]
	result, failure := f.results[pincode], f.failure
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, failure
}

func (f *fakeGeocoder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lookups...)
}

var mgRoad = Locality{Name: "MG Road", Coordinates: [2]float64{12.97, 77.59}}

func TestResolve(t *testing.T) {
	geocoder := &fakeGeocoder{results: map[string][]Locality{
		"560001": {mgRoad, {Name: "Shivajinagar", Coordinates: [2]float64{12.98, 77.6}}},
	}}
	resolver := NewResolver(geocoder, nil)

	tests := []struct {
		pincode string
		want    error
		count   int
	}{
		{"560001", nil, 2},
		{"999999", ErrPincodeNotFound, 0},
		{"56000", ErrInvalidPincode, 0},
		{"5600011", ErrInvalidPincode, 0},
		{"56000a", ErrInvalidPincode, 0},
		{"", ErrInvalidPincode, 0},
	}
	for _, test := range tests {
		localities, err := resolver.Resolve(context.Background(), test.pincode)
		if !errors.Is(err, test.want) {
			t.Errorf("Resolve(%q) error = %v, want %v", test.pincode, err, test.want)
		}
		if len(localities) != test.count {
			t.Errorf("Resolve(%q) returned %d localities, want %d", test.pincode, len(localities), test.count)
		}
	}

	if got := strings.Join(geocoder.calls(), ","); got != "560001,999999" {
		t.Errorf("lookups = %s, want only the well-formed pincodes", got)
	}
}

func TestResolveWrapsFailures(t *testing.T) {
	cause := errors.New("connection refused")
	resolver := NewResolver(&fakeGeocoder{failure: cause}, nil)

	_, err := resolver.Resolve(context.Background(), "560001")
	if !errors.Is(err, ErrLookupFailed) || !errors.Is(err, cause) {
		t.Errorf("error = %v, want ErrLookupFailed wrapping the cause", err)
	}
}

func TestResolveDoesNotCache(t *testing.T) {
	geocoder := &fakeGeocoder{results: map[string][]Locality{"560001": {mgRoad}}}
	resolver := NewResolver(geocoder, nil)
	for range 3 {
		resolver.Resolve(context.Background(), "560001")
	}
	if calls := len(geocoder.calls()); calls != 3 {
		t.Errorf("lookups = %d, want 3", calls)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidPincode, "Enter a 6 digit pincode."},
		{ErrPincodeNotFound, "Invalid pincode. No localities found."},
		{ErrLookupFailed, "Could not look up this pincode. Try again."},
	}
	for _, test := range tests {
		if got := UserMessage(test.err); got != test.want {
			t.Errorf("UserMessage(%v) = %q, want %q", test.err, got, test.want)
		}
	}
}

func TestMapURL(t *testing.T) {
	want := "https://www.openstreetmap.org/?mlat=12.97&mlon=77.59#map=15/12.97/77.59"
	if got := mgRoad.MapURL(); got != want {
		t.Errorf("MapURL() = %q, want %q", got, want)
	}
}
