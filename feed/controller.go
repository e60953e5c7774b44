// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/report"
	"github.com/crowdsync/crowdsync/session"
)

// View is what the controller is showing.
type View int

const (
	// ViewLoading is shown before the first Refresh completes.
	ViewLoading View = iota
	// ViewSignedOut is shown when nobody is signed in.
	ViewSignedOut
	// ViewPincodeCapture asks the user for a home pincode.
	ViewPincodeCapture
	// ViewFeed lists reports for the home pincode.
	ViewFeed
)

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewSignedOut:
		return "signed-out"
	case ViewPincodeCapture:
		return "pincode-capture"
	case ViewFeed:
		return "feed"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// State is a snapshot of the controller.
type State struct {
	View     View
	Identity session.Identity
	Profile  report.Profile
	Items    []report.FeedItem
	// Comments holds the lists loaded with LoadComments, by post ID.
	Comments map[string][]report.Comment
}

// IdentitySource reports who is signed in. *session.Store satisfies
// it.
type IdentitySource interface {
	Current() (session.Identity, bool)
}

// Repository is the data layer the controller drives.
// *report.Repository satisfies it.
type Repository interface {
	ListReports(ctx context.Context, pincode string) ([]report.FeedItem, error)
	CreateReport(ctx context.Context, draft report.Draft) (report.Report, report.Invalidation, error)
	MarkDuplicate(ctx context.Context, postID string) (report.Invalidation, error)
	ListComments(ctx context.Context, postID string) ([]report.Comment, error)
	CreateComment(ctx context.Context, postID, content string) (report.Comment, report.Invalidation, error)
	GetOrCreateProfile(ctx context.Context, userID string) (report.Profile, error)
	UpdatePincode(ctx context.Context, profile report.Profile, pincode string) (report.Profile, report.Invalidation, error)
}

// Config holds the dependencies of a Controller.
type Config struct {
	Identity   IdentitySource
	Repository Repository
	// Notifier receives success and failure messages. Optional.
	Notifier Notifier
	// OnChange is called with the new state after every change,
	// outside the controller's lock. Optional.
	OnChange func(State)
	Logger   *slog.Logger
}

// Controller decides between the signed-out view, pincode capture,
// and the feed, and re-runs queries after mutations. Re-fetching is
// the only consistency mechanism; nothing is patched in place.
type Controller struct {
	identity   IdentitySource
	repository Repository
	notifier   Notifier
	onChange   func(State)
	logger     *slog.Logger

	mu    sync.Mutex
	state State
	// Each refresh takes a ticket; results older than the newest
	// applied ticket are dropped.
	issued  uint64
	applied uint64
}

// New validates cfg and returns a Controller in ViewLoading.
func New(cfg Config) (*Controller, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("feed: Identity is required")
	}
	if cfg.Repository == nil {
		return nil, fmt.Errorf("feed: Repository is required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		identity:   cfg.Identity,
		repository: cfg.Repository,
		notifier:   notifier,
		onChange:   cfg.OnChange,
		logger:     logger,
		state:      State{View: ViewLoading, Comments: make(map[string][]report.Comment)},
	}, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Refresh re-derives the view from the identity, the profile, and
// the feed.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	ticket := c.issued
	c.mu.Unlock()

	identity, signedIn := c.identity.Current()
	if !signedIn {
		c.apply(ticket, State{View: ViewSignedOut})
		return nil
	}

	profile, err := c.repository.GetOrCreateProfile(ctx, identity.ID)
	if err != nil {
		return c.fail("Could not load your profile", err)
	}
	if !profile.HasPincode() {
		c.apply(ticket, State{View: ViewPincodeCapture, Identity: identity, Profile: profile})
		return nil
	}

	items, err := c.repository.ListReports(ctx, profile.Pincode)
	if err != nil {
		return c.fail("Could not load reports", err)
	}
	c.apply(ticket, State{View: ViewFeed, Identity: identity, Profile: profile, Items: items})
	return nil
}

// SetPincode saves the home pincode and shows its feed.
func (c *Controller) SetPincode(ctx context.Context, pincode string) error {
	profile := c.State().Profile
	if profile.ID == "" {
		identity, signedIn := c.identity.Current()
		if !signedIn {
			return c.fail("Could not save pincode", session.ErrNoSession)
		}
		var err error
		profile, err = c.repository.GetOrCreateProfile(ctx, identity.ID)
		if err != nil {
			return c.fail("Could not save pincode", err)
		}
	}
	_, invalidation, err := c.repository.UpdatePincode(ctx, profile, pincode)
	if err != nil {
		return c.fail("Could not save pincode", err)
	}
	c.notifier.Notify(Notification{Level: LevelSuccess, Title: "Pincode saved", Message: "Showing reports for " + invalidation.Pincode + "."})
	return c.Apply(ctx, invalidation)
}

// SubmitReport creates a report and re-fetches the feed.
func (c *Controller) SubmitReport(ctx context.Context, draft report.Draft) (report.Report, error) {
	created, invalidation, err := c.repository.CreateReport(ctx, draft)
	if err != nil {
		return report.Report{}, c.fail("Could not submit report", err)
	}
	c.notifier.Notify(Notification{Level: LevelSuccess, Title: "Report submitted", Message: "Thank you for reporting."})
	return created, c.Apply(ctx, invalidation)
}

// MarkDuplicate records "I saw this too" and re-fetches the feed. A
// repeat is reported as info, not failure, but still returns
// report.ErrAlreadyReported.
func (c *Controller) MarkDuplicate(ctx context.Context, postID string) error {
	invalidation, err := c.repository.MarkDuplicate(ctx, postID)
	if err != nil {
		return c.fail("Report same issue", err)
	}
	c.notifier.Notify(Notification{Level: LevelSuccess, Title: "Report same issue", Message: "Thanks, your report was counted."})
	return c.Apply(ctx, invalidation)
}

// AddComment posts a comment and re-fetches the post's comments.
func (c *Controller) AddComment(ctx context.Context, postID, content string) error {
	_, invalidation, err := c.repository.CreateComment(ctx, postID, content)
	if err != nil {
		return c.fail("Could not add comment", err)
	}
	return c.Apply(ctx, invalidation)
}

// LoadComments fetches postID's comments into the state.
func (c *Controller) LoadComments(ctx context.Context, postID string) ([]report.Comment, error) {
	comments, err := c.repository.ListComments(ctx, postID)
	if err != nil {
		return nil, c.fail("Could not load comments", err)
	}
	c.mu.Lock()
	c.state.Comments[postID] = comments
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.changed(snapshot)
	return comments, nil
}

// Apply re-runs the query an Invalidation names.
func (c *Controller) Apply(ctx context.Context, invalidation report.Invalidation) error {
	c.logger.Debug("applying invalidation", "kind", invalidation.Kind,
		"pincode", invalidation.Pincode, "post_id", invalidation.PostID)
	switch invalidation.Kind {
	case report.InvalidateComments:
		_, err := c.LoadComments(ctx, invalidation.PostID)
		return err
	case report.InvalidateFeed, report.InvalidateProfile:
		return c.Refresh(ctx)
	}
	return fmt.Errorf("feed: unknown invalidation %v", invalidation.Kind)
}

// Watch refreshes whenever the signed-in identity changes, until
// states closes or ctx ends.
func (c *Controller) Watch(ctx context.Context, states <-chan session.State) {
	var last *session.State
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if state.Loading {
				continue
			}
			if last != nil && last.SignedIn == state.SignedIn && last.Identity.ID == state.Identity.ID {
				continue
			}
			last = &state
			// Refresh has already notified the user on failure.
			if err := c.Refresh(ctx); err != nil {
				c.logger.Debug("refresh after session change failed", "error", err)
			}
		}
	}
}

func (c *Controller) apply(ticket uint64, next State) {
	c.mu.Lock()
	if ticket < c.applied {
		c.mu.Unlock()
		c.logger.Debug("dropping stale refresh", "ticket", ticket, "applied", c.applied)
		return
	}
	c.applied = ticket
	// Loaded comments survive a feed refresh for the same user.
	comments := c.state.Comments
	if next.Identity.ID != c.state.Identity.ID || comments == nil {
		comments = make(map[string][]report.Comment)
	}
	next.Comments = comments
	c.state = next
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.changed(snapshot)
}

func (c *Controller) fail(title string, err error) error {
	c.logger.Error(title, provider.LogAttrs(err)...)
	c.notifier.Notify(failureNotification(title, err))
	return err
}

func (c *Controller) changed(state State) {
	if c.onChange != nil {
		c.onChange(state)
	}
}

func (c *Controller) snapshotLocked() State {
	state := c.state
	state.Items = append([]report.FeedItem(nil), c.state.Items...)
	state.Comments = make(map[string][]report.Comment, len(c.state.Comments))
	for postID, comments := range c.state.Comments {
		state.Comments[postID] = append([]report.Comment(nil), comments...)
	}
	return state
}
