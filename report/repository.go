// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/crowdsync/crowdsync/docstore"
	"github.com/crowdsync/crowdsync/locality"
	"github.com/crowdsync/crowdsync/provider"
	"github.com/crowdsync/crowdsync/session"
)

var (
	// ErrAlreadyReported is returned by MarkDuplicate when the user's
	// mark exists or is being written.
	ErrAlreadyReported = errors.New("report: already reported")
	// ErrEmptyComment is returned by CreateComment for blank content.
	ErrEmptyComment = errors.New("report: comment is empty")
)

// IdentitySource is how the repository learns who is writing.
// *session.Store satisfies it.
type IdentitySource interface {
	Revalidate(ctx context.Context) (session.Identity, error)
}

// RepositoryConfig holds the dependencies of a Repository.
type RepositoryConfig struct {
	Store    docstore.Store
	Identity IdentitySource
	Logger   *slog.Logger
	// PageSize caps ListReports. Defaults to MaxPageSize and never
	// exceeds it.
	PageSize int
	// CommentLimit caps ListComments. Defaults to 50.
	CommentLimit int
}

// MaxPageSize is the most reports one ListReports call returns.
const MaxPageSize = 10

// Repository reads and writes reports, duplicate marks, comments, and
// profiles. Each method is one logical store interaction; none span
// a transaction.
type Repository struct {
	store        docstore.Store
	identity     IdentitySource
	logger       *slog.Logger
	pageSize     int
	commentLimit int

	mu      sync.Mutex
	marking map[string]struct{}
}

// NewRepository validates cfg and returns a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("report: Store is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("report: Identity is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	commentLimit := cfg.CommentLimit
	if commentLimit <= 0 {
		commentLimit = 50
	}
	return &Repository{
		store:        cfg.Store,
		identity:     cfg.Identity,
		logger:       logger,
		pageSize:     pageSize,
		commentLimit: commentLimit,
		marking:      make(map[string]struct{}),
	}, nil
}

// ListReports returns the newest reports for pincode with their
// duplicate counts.
//
// Counts cost one query per report. That is fine for a page of ten;
// a larger feed would want a counter maintained at write time.
func (r *Repository) ListReports(ctx context.Context, pincode string) ([]FeedItem, error) {
	if !locality.ValidPincode(pincode) {
		return nil, fmt.Errorf("%w: %q", locality.ErrInvalidPincode, pincode)
	}

	query := docstore.Where(fieldPincode, pincode)
	query.NewestFirst = true
	query.Limit = r.pageSize
	page, err := r.store.List(ctx, docstore.CollectionReports, query)
	if err != nil {
		return nil, fmt.Errorf("report: listing reports for %s: %w", pincode, err)
	}

	items := make([]FeedItem, 0, len(page.Documents))
	for _, document := range page.Documents {
		decoded, err := decodeReport(document)
		if err != nil {
			r.logger.Warn("skipping malformed report", "report_id", document.ID, "error", err)
			continue
		}
		if decoded.Pincode != pincode {
			r.logger.Warn("store returned report for another pincode",
				"report_id", decoded.ID, "pincode", decoded.Pincode, "want", pincode)
			continue
		}
		duplicates, err := r.countDuplicates(ctx, decoded.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, FeedItem{Report: decoded, Duplicates: duplicates})
	}
	return items, nil
}

func (r *Repository) countDuplicates(ctx context.Context, postID string) (int, error) {
	query := docstore.Where(fieldPostID, postID)
	query.Limit = 1
	page, err := r.store.List(ctx, docstore.CollectionDuplicates, query)
	if err != nil {
		return 0, fmt.Errorf("report: counting duplicates of %s: %w", postID, err)
	}
	return page.Total, nil
}

// CreateReport validates draft, confirms the session is still live,
// and stores the report.
func (r *Repository) CreateReport(ctx context.Context, draft Draft) (Report, Invalidation, error) {
	if err := draft.Validate(); err != nil {
		return Report{}, Invalidation{}, err
	}
	identity, err := r.identity.Revalidate(ctx)
	if err != nil {
		return Report{}, Invalidation{}, fmt.Errorf("report: %w", err)
	}
	localities, err := EncodeLocalities(draft.Localities)
	if err != nil {
		return Report{}, Invalidation{}, err
	}

	fields := map[string]any{
		fieldType:        string(draft.Type),
		fieldSubtype:     strings.TrimSpace(draft.Subtype),
		fieldSeverity:    string(draft.Severity),
		fieldPincode:     draft.Pincode,
		fieldLocalities:  localities,
		fieldDescription: strings.TrimSpace(draft.Description),
		fieldUserID:      identity.ID,
	}
	document, err := r.store.Create(ctx, docstore.CollectionReports, "", fields)
	if err != nil {
		r.logger.Error("creating report failed", append([]any{"pincode", draft.Pincode}, provider.LogAttrs(err)...)...)
		return Report{}, Invalidation{}, fmt.Errorf("report: creating report: %w", err)
	}
	created, err := decodeReport(document)
	if err != nil {
		return Report{}, Invalidation{}, err
	}

	r.logger.Info("report created", "report_id", created.ID, "pincode", created.Pincode, "severity", created.Severity)
	return created, Invalidation{Kind: InvalidateFeed, Pincode: created.Pincode}, nil
}

// MarkDuplicate records that the signed-in user saw postID's incident
// too. A second mark by the same user fails with ErrAlreadyReported,
// whether it overlaps the first or follows it.
func (r *Repository) MarkDuplicate(ctx context.Context, postID string) (Invalidation, error) {
	if postID == "" {
		return Invalidation{}, fmt.Errorf("report: post ID is required")
	}
	identity, err := r.identity.Revalidate(ctx)
	if err != nil {
		return Invalidation{}, fmt.Errorf("report: %w", err)
	}

	markID := DuplicateMarkID(identity.ID, postID)
	r.mu.Lock()
	if _, busy := r.marking[markID]; busy {
		r.mu.Unlock()
		return Invalidation{}, ErrAlreadyReported
	}
	r.marking[markID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.marking, markID)
		r.mu.Unlock()
	}()

	existing, err := r.store.List(ctx, docstore.CollectionDuplicates, docstore.Query{
		Filters: []docstore.Filter{{Field: fieldPostID, Value: postID}, {Field: fieldUserID, Value: identity.ID}},
		Limit:   1,
	})
	if err != nil {
		return Invalidation{}, fmt.Errorf("report: checking duplicate mark: %w", err)
	}
	if existing.Total > 0 {
		return Invalidation{}, ErrAlreadyReported
	}

	// The check above is advisory; the derived ID makes the insert
	// itself the uniqueness test.
	_, err = r.store.Create(ctx, docstore.CollectionDuplicates, markID, map[string]any{
		fieldUserID: identity.ID,
		fieldPostID: postID,
	})
	if errors.Is(err, docstore.ErrConflict) {
		return Invalidation{}, ErrAlreadyReported
	}
	if err != nil {
		r.logger.Error("marking duplicate failed", append([]any{"post_id", postID}, provider.LogAttrs(err)...)...)
		return Invalidation{}, fmt.Errorf("report: marking duplicate: %w", err)
	}

	r.logger.Info("duplicate marked", "post_id", postID, "user_id", identity.ID)
	return Invalidation{Kind: InvalidateFeed, PostID: postID}, nil
}

// ListComments returns postID's newest comments.
func (r *Repository) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	query := docstore.Where(fieldPostID, postID)
	query.NewestFirst = true
	query.Limit = r.commentLimit
	page, err := r.store.List(ctx, docstore.CollectionComments, query)
	if err != nil {
		return nil, fmt.Errorf("report: listing comments on %s: %w", postID, err)
	}
	comments := make([]Comment, 0, len(page.Documents))
	for _, document := range page.Documents {
		comment, err := decodeComment(document)
		if err != nil {
			r.logger.Warn("skipping malformed comment", "comment_id", document.ID, "error", err)
			continue
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// CreateComment adds a comment by the signed-in user.
func (r *Repository) CreateComment(ctx context.Context, postID, content string) (Comment, Invalidation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, Invalidation{}, ErrEmptyComment
	}
	if postID == "" {
		return Comment{}, Invalidation{}, fmt.Errorf("report: post ID is required")
	}
	identity, err := r.identity.Revalidate(ctx)
	if err != nil {
		return Comment{}, Invalidation{}, fmt.Errorf("report: %w", err)
	}

	document, err := r.store.Create(ctx, docstore.CollectionComments, "", map[string]any{
		fieldPostID:  postID,
		fieldUserID:  identity.ID,
		fieldContent: content,
	})
	if err != nil {
		r.logger.Error("creating comment failed", append([]any{"post_id", postID}, provider.LogAttrs(err)...)...)
		return Comment{}, Invalidation{}, fmt.Errorf("report: creating comment: %w", err)
	}
	comment, err := decodeComment(document)
	if err != nil {
		return Comment{}, Invalidation{}, err
	}
	return comment, Invalidation{Kind: InvalidateComments, PostID: postID}, nil
}

// GetOrCreateProfile returns userID's profile, creating one with an
// empty pincode on first use.
func (r *Repository) GetOrCreateProfile(ctx context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("report: user ID is required")
	}

	query := docstore.Where(fieldUserID, userID)
	query.Limit = 1
	page, err := r.store.List(ctx, docstore.CollectionProfiles, query)
	if err != nil {
		return Profile{}, fmt.Errorf("report: finding profile: %w", err)
	}
	if len(page.Documents) > 0 {
		return decodeProfile(page.Documents[0])
	}

	document, err := r.store.Create(ctx, docstore.CollectionProfiles, ProfileID(userID), map[string]any{
		fieldUserID:  userID,
		fieldPincode: "",
	})
	if errors.Is(err, docstore.ErrConflict) {
		// Created concurrently by another client of the same account.
		document, err = r.store.Get(ctx, docstore.CollectionProfiles, ProfileID(userID))
	}
	if err != nil {
		return Profile{}, fmt.Errorf("report: creating profile: %w", err)
	}
	r.logger.Info("profile created", "user_id", userID)
	return decodeProfile(document)
}

// UpdatePincode sets the profile's home pincode.
func (r *Repository) UpdatePincode(ctx context.Context, profile Profile, pincode string) (Profile, Invalidation, error) {
	pincode = strings.TrimSpace(pincode)
	if !locality.ValidPincode(pincode) {
		return Profile{}, Invalidation{}, fmt.Errorf("%w: %q", locality.ErrInvalidPincode, pincode)
	}
	if profile.ID == "" {
		return Profile{}, Invalidation{}, fmt.Errorf("report: profile has no ID")
	}
	document, err := r.store.Update(ctx, docstore.CollectionProfiles, profile.ID, map[string]any{fieldPincode: pincode})
	if err != nil {
		r.logger.Error("updating pincode failed", append([]any{"profile_id", profile.ID}, provider.LogAttrs(err)...)...)
		return Profile{}, Invalidation{}, fmt.Errorf("report: updating pincode: %w", err)
	}
	updated, err := decodeProfile(document)
	if err != nil {
		return Profile{}, Invalidation{}, err
	}
	return updated, Invalidation{Kind: InvalidateProfile, Pincode: pincode}, nil
}
