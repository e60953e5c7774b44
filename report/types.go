// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crowdsync/crowdsync/locality"
)

// Type is the broad class of a report.
type Type string

const (
	Hazard   Type = "Hazard"
	Disaster Type = "Disaster"
)

// KnownSubtypes are offered as suggestions. Subtype is free-form.
var KnownSubtypes = map[Type][]string{
	Hazard:   {"fire", "gas leak", "road block", "fallen tree", "open manhole", "electrical", "waterlogging"},
	Disaster: {"flood", "earthquake", "cyclone", "landslide", "building collapse", "tsunami", "drought"},
}

// ParseType accepts a type name in any case.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{Hazard, Disaster} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("report: unknown type %q (want Hazard or Disaster)", s)
}

// Severity is how urgent a report is.
type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(s string) (Severity, error) {
	for _, severity := range []Severity{Low, Medium, High} {
		if strings.EqualFold(s, string(severity)) {
			return severity, nil
		}
	}
	return "", fmt.Errorf("report: unknown severity %q (want low, medium, or high)", s)
}

// Color is the marker color for the severity.
func (s Severity) Color() string {
	switch s {
	case Low:
		return "green"
	case Medium:
		return "orange"
	case High:
		return "red"
	}
	return "gray"
}

// Report is an incident as stored. Reports are never edited.
type Report struct {
	ID          string              `json:"id"`
	Type        Type                `json:"type"`
	Subtype     string              `json:"subtype"`
	Severity    Severity            `json:"severity"`
	Pincode     string              `json:"pincode"`
	Localities  []locality.Locality `json:"localities"`
	Description string              `json:"description,omitempty"`
	UserID      string              `json:"user_id"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Center is the map center for the report: its first locality.
func (r Report) Center() ([2]float64, bool) {
	if len(r.Localities) == 0 {
		return [2]float64{}, false
	}
	return r.Localities[0].Coordinates, true
}

// FeedItem is a report with the number of users who marked it as a
// recurrence.
type FeedItem struct {
	Report
	Duplicates int `json:"duplicates"`
}

// Draft is a report before submission.
type Draft struct {
	Type        Type
	Subtype     string
	Severity    Severity
	Pincode     string
	Localities  []locality.Locality
	Description string
}

// ErrInvalidDraft wraps every Draft validation failure.
var ErrInvalidDraft = errors.New("report: invalid report")

// Validate reports every problem with the draft at once.
func (d Draft) Validate() error {
	var problems []error
	if d.Type != Hazard && d.Type != Disaster {
		problems = append(problems, fmt.Errorf("type must be Hazard or Disaster"))
	}
	if strings.TrimSpace(d.Subtype) == "" {
		problems = append(problems, fmt.Errorf("subtype is required"))
	}
	switch d.Severity {
	case Low, Medium, High:
	default:
		problems = append(problems, fmt.Errorf("severity must be low, medium, or high"))
	}
	if !locality.ValidPincode(d.Pincode) {
		problems = append(problems, fmt.Errorf("pincode must be 6 digits"))
	}
	if len(d.Localities) == 0 {
		problems = append(problems, fmt.Errorf("select at least one locality"))
	}
	for i, l := range d.Localities {
		if strings.TrimSpace(l.Name) == "" {
			problems = append(problems, fmt.Errorf("locality %d has no name", i+1))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDraft, errors.Join(problems...))
}

// DuplicateMark records that a user saw the same incident again.
type DuplicateMark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PostID    string    `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment is a note on a report.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is per-user settings. An empty Pincode means the user has
// not chosen one yet.
type Profile struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Pincode string `json:"pincode"`
}

// HasPincode reports whether the user has set a home pincode.
func (p Profile) HasPincode() bool {
	return p.Pincode != ""
}

// InvalidationKind names the query a mutation made stale.
type InvalidationKind int

const (
	// InvalidateFeed re-runs the report list for Pincode.
	InvalidateFeed InvalidationKind = iota + 1
	// InvalidateComments re-runs the comment list for PostID.
	InvalidateComments
	// InvalidateProfile re-reads the profile, then the feed.
	InvalidateProfile
)

func (k InvalidationKind) String() string {
	switch k {
	case InvalidateFeed:
		return "feed"
	case InvalidateComments:
		return "comments"
	case InvalidateProfile:
		return "profile"
	}
	return fmt.Sprintf("InvalidationKind(%d)", int(k))
}

// Invalidation is returned by every mutation. The caller re-runs the
// named query; nothing is updated in place.
type Invalidation struct {
	Kind    InvalidationKind
	Pincode string
	PostID  string
}
