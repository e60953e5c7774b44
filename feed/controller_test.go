// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feed_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/lib/testutil"
	"github.com/crowdsync/crowdsync/locality"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/provider/providertest"
	"github.com/crowdsync/crowdsync/report"
	"github.com/crowdsync/crowdsync/session"
)

type notifications struct {
	mu   sync.Mutex
	list []feed.Notification
}

func (n *notifications) Notify(notification feed.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notification)
}

func (n *notifications) last() feed.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.list) == 0 {
		return feed.Notification{}
	}
	return n.list[len(n.list)-1]
}

type fixture struct {
	server     *providertest.Server
	session    *session.Store
	repository *report.Repository
	controller *feed.Controller
	notified   *notifications
}

// newFixture wires the real stack against the fake backend. The user
// is signed in when signedIn is true.
func newFixture(t *testing.T, signedIn bool) *fixture {
	t.Helper()
	server := providertest.NewServer(t)
	client := server.NewClient(t)
	if signedIn {
		client, _ = server.SignedInClient(t, testutil.UniqueEmail("reporter"), "Reporter")
	}

	store, err := session.New(session.Config{Account: client, CallbackURL: "http://127.0.0.1:8787/auth/callback"})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(store.Close)
	store.CheckSession(context.Background())

	documents, err := docstore.NewRemote(docstore.RemoteConfig{
		API:        client,
		DatabaseID: "crowdsync",
		Collections: map[string]string{
			docstore.CollectionProfiles:   "profiles",
			docstore.CollectionReports:    "posts",
			docstore.CollectionDuplicates: "duplicates",
			docstore.CollectionComments:   "comments",
		},
	})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	repository, err := report.NewRepository(report.RepositoryConfig{Store: documents, Identity: store})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}

	notified := &notifications{}
	controller, err := feed.New(feed.Config{Identity: store, Repository: repository, Notifier: notified})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	return &fixture{server: server, session: store, repository: repository, controller: controller, notified: notified}
}

func (f *fixture) refresh(t *testing.T) feed.State {
	t.Helper()
	if err := f.controller.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return f.controller.State()
}

func fireDraft() report.Draft {
	return report.Draft{
		Type:        report.Hazard,
		Subtype:     "fire",
		Severity:    report.High,
		Pincode:     "560001",
		Localities:  []locality.Locality{{Name: "MG Road", Coordinates: [2]float64{12.97, 77.59}}},
		Description: "Warehouse fire",
	}
}

func TestSignedOutView(t *testing.T) {
	f := newFixture(t, false)
	if view := f.controller.State().View; view != feed.ViewLoading {
		t.Errorf("initial view = %s, want loading", view)
	}
	if state := f.refresh(t); state.View != feed.ViewSignedOut {
		t.Errorf("view = %s, want signed-out", state.View)
	}
}

func TestNewIdentityCapturesPincode(t *testing.T) {
	f := newFixture(t, true)

	state := f.refresh(t)
	if state.View != feed.ViewPincodeCapture {
		t.Fatalf("view = %s, want pincode-capture", state.View)
	}
	if state.Profile.Pincode != "" || state.Profile.ID == "" {
		t.Errorf("profile = %+v, want a stored profile with an empty pincode", state.Profile)
	}
	if state.Identity.Name != "Reporter" {
		t.Errorf("identity = %+v", state.Identity)
	}

	if err := f.controller.SetPincode(context.Background(), "560001"); err != nil {
		t.Fatalf("SetPincode: %v", err)
	}
	state = f.controller.State()
	if state.View != feed.ViewFeed || state.Profile.Pincode != "560001" || len(state.Items) != 0 {
		t.Errorf("state after SetPincode = %+v", state)
	}
	if f.notified.last().Level != feed.LevelSuccess {
		t.Errorf("notification = %+v", f.notified.last())
	}
}

func TestSetPincodeRejectsBadInput(t *testing.T) {
	f := newFixture(t, true)
	f.refresh(t)

	err := f.controller.SetPincode(context.Background(), "56000")
	if !errors.Is(err, locality.ErrInvalidPincode) {
		t.Errorf("SetPincode(56000) = %v, want ErrInvalidPincode", err)
	}
	if n := f.notified.last(); n.Level != feed.LevelError || n.Message != "Enter a 6 digit pincode." {
		t.Errorf("notification = %+v", n)
	}
	if view := f.controller.State().View; view != feed.ViewPincodeCapture {
		t.Errorf("view = %s, want pincode-capture", view)
	}
}

func TestSubmittedReportAppearsFirst(t *testing.T) {
	f := newFixture(t, true)
	f.refresh(t)
	f.controller.SetPincode(context.Background(), "560001")

	older := fireDraft()
	older.Subtype = "gas leak"
	if _, err := f.controller.SubmitReport(context.Background(), older); err != nil {
		t.Fatalf("SubmitReport(older): %v", err)
	}
	created, err := f.controller.SubmitReport(context.Background(), fireDraft())
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}

	state := f.controller.State()
	if len(state.Items) != 2 || state.Items[0].ID != created.ID {
		t.Fatalf("feed = %+v, want the new report first", state.Items)
	}
	first := state.Items[0]
	if first.Subtype != "fire" || first.Localities[0].Name != "MG Road" || first.Duplicates != 0 {
		t.Errorf("first item = %+v", first)
	}

	stored := f.server.Documents("crowdsync", "posts")
	localities, ok := stored[len(stored)-1].Data["localities"].([]any)
	if !ok || len(localities) != 1 {
		t.Fatalf("stored localities = %#v, want one element", stored[len(stored)-1].Data["localities"])
	}
	if _, ok := localities[0].(string); !ok {
		t.Errorf("stored locality is %T, want string", localities[0])
	}
}

func TestInvalidReportNotifiesWithDetail(t *testing.T) {
	f := newFixture(t, true)
	draft := fireDraft()
	draft.Localities = nil

	if _, err := f.controller.SubmitReport(context.Background(), draft); !errors.Is(err, report.ErrInvalidDraft) {
		t.Fatalf("SubmitReport = %v, want ErrInvalidDraft", err)
	}
	if n := f.notified.last(); n.Message != "select at least one locality" {
		t.Errorf("notification message = %q", n.Message)
	}
}

func TestMarkDuplicateTwice(t *testing.T) {
	f := newFixture(t, true)
	f.refresh(t)
	f.controller.SetPincode(context.Background(), "560001")
	created, _ := f.controller.SubmitReport(context.Background(), fireDraft())

	if err := f.controller.MarkDuplicate(context.Background(), created.ID); err != nil {
		t.Fatalf("MarkDuplicate: %v", err)
	}
	if got := f.controller.State().Items[0].Duplicates; got != 1 {
		t.Errorf("duplicates after first mark = %d, want 1", got)
	}

	err := f.controller.MarkDuplicate(context.Background(), created.ID)
	if !errors.Is(err, report.ErrAlreadyReported) {
		t.Errorf("second MarkDuplicate = %v, want ErrAlreadyReported", err)
	}
	if n := f.notified.last(); n.Level != feed.LevelInfo || n.Message != "You have already reported this issue." {
		t.Errorf("notification = %+v", n)
	}
	if got := len(f.server.Documents("crowdsync", "duplicates")); got != 1 {
		t.Errorf("stored %d marks, want 1", got)
	}
}

func TestAddComment(t *testing.T) {
	f := newFixture(t, true)
	f.refresh(t)
	f.controller.SetPincode(context.Background(), "560001")
	created, _ := f.controller.SubmitReport(context.Background(), fireDraft())

	if err := f.controller.AddComment(context.Background(), created.ID, "Fire brigade is here"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	comments := f.controller.State().Comments[created.ID]
	if len(comments) != 1 || comments[0].Content != "Fire brigade is here" {
		t.Errorf("comments = %+v", comments)
	}

	// A feed refresh keeps loaded comments.
	f.refresh(t)
	if len(f.controller.State().Comments[created.ID]) != 1 {
		t.Error("comments dropped by refresh")
	}
}

func TestBackendFailureIsGeneric(t *testing.T) {
	f := newFixture(t, true)
	f.refresh(t)
	f.controller.SetPincode(context.Background(), "560001")
	f.server.FailNext(providertest.RouteListDocuments, &provider.Error{
		Code: 500, Type: "general_unknown", Message: "internal detail", StatusCode: 500,
	})

	if err := f.controller.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded despite the backend failing")
	}
	n := f.notified.last()
	if n.Level != feed.LevelError || n.Message != "Something went wrong. Please try again." {
		t.Errorf("notification = %+v, want the generic failure", n)
	}
	if view := f.controller.State().View; view != feed.ViewFeed {
		t.Errorf("view after failure = %s, want the previous feed", view)
	}
}

func TestTransientSessionFailureKeepsFeed(t *testing.T) {
	f := newFixture(t, true)
	f.refresh(t)
	f.controller.SetPincode(context.Background(), "560001")
	f.server.FailNext(providertest.RouteAccount, &provider.Error{
		Code: 503, Type: "general_server_error", Message: "down", StatusCode: 503,
	})

	if _, err := f.controller.SubmitReport(context.Background(), fireDraft()); err == nil {
		t.Fatal("SubmitReport succeeded despite the backend failing")
	}
	if n := f.notified.last(); n.Level != feed.LevelError || n.Message != "Something went wrong. Please try again." {
		t.Errorf("notification = %+v, want the generic failure", n)
	}
	if _, signedIn := f.session.Current(); !signedIn {
		t.Fatal("signed out by a transient backend failure")
	}
	if view := f.refresh(t).View; view != feed.ViewFeed {
		t.Errorf("view after refresh = %s, want feed", view)
	}

	// The retry goes through.
	if _, err := f.controller.SubmitReport(context.Background(), fireDraft()); err != nil {
		t.Fatalf("SubmitReport retry: %v", err)
	}
	if got := len(f.controller.State().Items); got != 1 {
		t.Errorf("feed has %d items after retry, want 1", got)
	}
}

func TestWatchFollowsSession(t *testing.T) {
	f := newFixture(t, true)
	changes := make(chan feed.State, 16)
	controller, err := feed.New(feed.Config{
		Identity:   f.session,
		Repository: f.repository,
		OnChange:   func(state feed.State) { changes <- state },
	})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states, unsubscribe := f.session.Subscribe()
	defer unsubscribe()
	go controller.Watch(ctx, states)

	state := testutil.RequireReceive(t, changes, 5*time.Second, "state after watch starts")
	if state.View != feed.ViewPincodeCapture {
		t.Errorf("view = %s, want pincode-capture", state.View)
	}

	if err := f.session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	state = testutil.RequireReceive(t, changes, 5*time.Second, "state after logout")
	if state.View != feed.ViewSignedOut {
		t.Errorf("view after logout = %s, want signed-out", state.View)
	}
}

// lineWriter hands each log line to a channel.
type lineWriter chan string

func (w lineWriter) Write(p []byte) (int, error) {
	select {
	case w <- string(p):
	default:
	}
	return len(p), nil
}

func TestWatchLogsFailedRefresh(t *testing.T) {
	f := newFixture(t, true)
	lines := make(lineWriter, 64)
	controller, err := feed.New(feed.Config{
		Identity:   f.session,
		Repository: f.repository,
		Logger:     slog.New(slog.NewTextHandler(lines, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	f.server.FailNext(providertest.RouteListDocuments, &provider.Error{
		Code: 500, Type: "general_unknown", Message: "boom", StatusCode: 500,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states, unsubscribe := f.session.Subscribe()
	defer unsubscribe()
	go controller.Watch(ctx, states)

	for {
		line := testutil.RequireReceive(t, (<-chan string)(lines), 5*time.Second, "debug line for the failed refresh")
		if strings.Contains(line, "refresh after session change failed") {
			if !strings.Contains(line, "level=DEBUG") {
				t.Errorf("line = %q, want debug level", line)
			}
			return
		}
	}
}
