// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package providertest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crowdsync/crowdsync/lib/clock"
	"github.com/crowdsync/crowdsync/provider"
)

// Routes, as ServeMux patterns. Calls and FailNext take these.
const (
	RouteVersion          = "GET /v1/health/version"
	RouteMagicURLToken    = "POST /v1/account/tokens/magic-url"
	RouteMagicURLSession  = "PUT /v1/account/sessions/magic-url"
	RouteTokenSession     = "POST /v1/account/sessions/token"
	RouteAccount          = "GET /v1/account"
	RouteDeleteSession    = "DELETE /v1/account/sessions/{session}"
	RouteSendVerification = "POST /v1/account/verification"
	RouteVerify           = "PUT /v1/account/verification"
	RouteListDocuments    = "GET /v1/databases/{database}/collections/{collection}/documents"
	RouteCreateDocument   = "POST /v1/databases/{database}/collections/{collection}/documents"
	RouteGetDocument      = "GET /v1/databases/{database}/collections/{collection}/documents/{document}"
	RouteUpdateDocument   = "PATCH /v1/databases/{database}/collections/{collection}/documents/{document}"
)

// TokenLifetime is how long magic-link and verification secrets stay
// redeemable.
const TokenLifetime = time.Hour

const defaultListLimit = 25

// Server is an in-memory stand-in for the backend. It implements the
// account and databases endpoints the client uses with the same
// status codes and error types as the real service.
type Server struct {
	ProjectID string

	httpServer *httptest.Server
	clock      clock.Clock

	mu        sync.Mutex
	users     map[string]*fakeUser
	byEmail   map[string]string
	tokens    map[string]*fakeToken
	sessions  map[string]*fakeSession
	documents map[string]map[string]*storedDocument
	sequence  int64
	links     map[string]string
	calls     map[string]int
	failures  map[string][]*provider.Error
}

type fakeUser struct {
	id       string
	name     string
	email    string
	verified bool
	created  time.Time
}

type tokenKind int

const (
	tokenMagicURL tokenKind = iota
	tokenVerification
)

type fakeToken struct {
	id      string
	userID  string
	kind    tokenKind
	expires time.Time
	used    bool
}

type fakeSession struct {
	id     string
	userID string
}

type storedDocument struct {
	document provider.Document
	sequence int64
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for document timestamps and token
// expiry.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithProjectID sets the project ID the server expects.
func WithProjectID(projectID string) Option {
	return func(s *Server) { s.ProjectID = projectID }
}

// NewServer starts a fake backend that is closed when the test ends.
func NewServer(t testing.TB, options ...Option) *Server {
	t.Helper()

	s := &Server{
		ProjectID: "crowdsync-test",
		clock:     clock.Real(),
		users:     make(map[string]*fakeUser),
		byEmail:   make(map[string]string),
		tokens:    make(map[string]*fakeToken),
		sessions:  make(map[string]*fakeSession),
		documents: make(map[string]map[string]*storedDocument),
		links:     make(map[string]string),
		calls:     make(map[string]int),
		failures:  make(map[string][]*provider.Error),
	}
	for _, option := range options {
		option(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(RouteVersion, s.handleVersion)
	mux.HandleFunc(RouteMagicURLToken, s.handleMagicURLToken)
	mux.HandleFunc(RouteMagicURLSession, s.handleCreateSession)
	mux.HandleFunc(RouteTokenSession, s.handleCreateSession)
	mux.HandleFunc(RouteAccount, s.handleAccount)
	mux.HandleFunc(RouteDeleteSession, s.handleDeleteSession)
	mux.HandleFunc(RouteSendVerification, s.handleSendVerification)
	mux.HandleFunc(RouteVerify, s.handleVerify)
	mux.HandleFunc(RouteListDocuments, s.handleListDocuments)
	mux.HandleFunc(RouteCreateDocument, s.handleCreateDocument)
	mux.HandleFunc(RouteGetDocument, s.handleGetDocument)
	mux.HandleFunc(RouteUpdateDocument, s.handleUpdateDocument)

	s.httpServer = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.httpServer.Close)
	return s
}

// Endpoint is the API root to pass to provider.ClientConfig.
func (s *Server) Endpoint() string {
	return s.httpServer.URL + "/v1"
}

// NewClient returns a client bound to this server with in-memory
// credentials.
func (s *Server) NewClient(t testing.TB) *provider.Client {
	t.Helper()
	client, err := provider.NewClient(provider.ClientConfig{
		Endpoint:   s.Endpoint(),
		ProjectID:  s.ProjectID,
		HTTPClient: s.httpServer.Client(),
	})
	if err != nil {
		t.Fatalf("provider.NewClient: %v", err)
	}
	return client
}

// LastLink returns the most recent link emailed to email, magic link
// or verification link.
func (s *Server) LastLink(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[strings.ToLower(email)]
	return link, ok
}

// LastLinkParams returns the userId and secret of the most recent link
// emailed to email.
func (s *Server) LastLinkParams(t testing.TB, email string) (userID, secret string) {
	t.Helper()
	link, ok := s.LastLink(email)
	if !ok {
		t.Fatalf("no link was sent to %s", email)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parsing link %q: %v", link, err)
	}
	return parsed.Query().Get("userId"), parsed.Query().Get("secret")
}

// SignIn creates (or reuses) the account for email and returns a
// session secret, bypassing the email round trip.
func (s *Server) SignIn(email, name string) (userID, sessionSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.ensureUserLocked(randomID(), email)
	if name != "" {
		user.name = name
	}
	return user.id, s.newSessionLocked(user.id)
}

// SignedInClient signs in email and returns a client already holding
// the session, along with the account ID.
func (s *Server) SignedInClient(t testing.TB, email, name string) (*provider.Client, string) {
	t.Helper()
	userID, secret := s.SignIn(email, name)
	credentials := &provider.MemoryCredentials{}
	credentials.Save(secret)
	client, err := provider.NewClient(provider.ClientConfig{
		Endpoint:    s.Endpoint(),
		ProjectID:   s.ProjectID,
		HTTPClient:  s.httpServer.Client(),
		Credentials: credentials,
	})
	if err != nil {
		t.Fatalf("provider.NewClient: %v", err)
	}
	return client, userID
}

// SetName sets the display name of an existing account.
func (s *Server) SetName(userID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		user.name = name
	}
}

// Calls returns how many requests matched route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// FailNext makes the next request on route fail with err.
func (s *Server) FailNext(route string, err *provider.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], err)
}

// Documents returns a collection's documents in insertion order.
func (s *Server) Documents(databaseID, collectionID string) []provider.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.sortedLocked(databaseID, collectionID)
	documents := make([]provider.Document, 0, len(stored))
	for _, entry := range stored {
		documents = append(documents, entry.document)
	}
	return documents
}

// intercept counts calls, checks the project header, and serves
// injected failures before the real handler runs.
func (s *Server) intercept(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, pattern := mux.Handler(request)

		s.mu.Lock()
		s.calls[pattern]++
		var injected *provider.Error
		if queue := s.failures[pattern]; len(queue) > 0 {
			injected = queue[0]
			s.failures[pattern] = queue[1:]
		}
		s.mu.Unlock()

		if pattern != RouteVersion && request.Header.Get(provider.HeaderProject) != s.ProjectID {
			writeError(writer, http.StatusNotFound, "project_not_found", "Project with the requested ID could not be found.")
			return
		}
		if injected != nil {
			writeError(writer, injected.Code, injected.Type, injected.Message)
			return
		}
		mux.ServeHTTP(writer, request)
	})
}

func (s *Server) handleVersion(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]string{"version": "1.6.0"})
}

func (s *Server) handleMagicURLToken(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
		URL    string `json:"url"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	if body.UserID == "" || !strings.Contains(body.Email, "@") {
		writeError(writer, http.StatusBadRequest, provider.ErrTypeArgumentInvalid, "Invalid `email` param: Value must be a valid email address")
		return
	}
	redirect, err := url.Parse(body.URL)
	if err != nil || redirect.Host == "" {
		writeError(writer, http.StatusBadRequest, provider.ErrTypeArgumentInvalid, "Invalid `url` param: URL must be absolute")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.ensureUserLocked(body.UserID, body.Email)
	secret := randomID() + randomID()
	token := &fakeToken{
		id:      randomID(),
		userID:  user.id,
		kind:    tokenMagicURL,
		expires: s.clock.Now().Add(TokenLifetime),
	}
	s.tokens[secret] = token
	s.links[strings.ToLower(body.Email)] = appendParams(redirect, user.id, secret)

	writeJSON(writer, http.StatusCreated, provider.Token{
		ID:     token.id,
		UserID: user.id,
		Expire: token.expires.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleCreateSession(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Secret string `json:"secret"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[body.Secret]
	if !ok || token.used || token.kind != tokenMagicURL || token.userID != body.UserID || s.clock.Now().After(token.expires) {
		writeError(writer, http.StatusUnauthorized, provider.ErrTypeUserInvalidToken, "Invalid token passed in the request.")
		return
	}
	token.used = true

	user := s.users[token.userID]
	// Following a magic link proves ownership of the address.
	user.verified = true

	secret := s.newSessionLocked(user.id)
	session := s.sessions[secret]

	cookieName := "a_session_" + s.ProjectID
	http.SetCookie(writer, &http.Cookie{Name: cookieName, Value: secret, Path: "/", HttpOnly: true})
	fallback, _ := json.Marshal(map[string]string{cookieName: secret})
	writer.Header().Set(provider.HeaderFallbackCookies, string(fallback))

	writeJSON(writer, http.StatusCreated, provider.Session{
		ID:       session.id,
		UserID:   user.id,
		Provider: "magic-url",
		Current:  true,
		Expire:   s.clock.Now().Add(365 * 24 * time.Hour).UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleAccount(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, _, ok := s.authenticateLocked(writer, request)
	if !ok {
		return
	}
	writeJSON(writer, http.StatusOK, user.toProvider())
}

func (s *Server) handleDeleteSession(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, currentSecret, ok := s.authenticateLocked(writer, request)
	if !ok {
		return
	}

	target := request.PathValue("session")
	if target == "current" {
		delete(s.sessions, currentSecret)
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	for secret, session := range s.sessions {
		if session.id == target && session.userID == user.id {
			delete(s.sessions, secret)
			writer.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(writer, http.StatusNotFound, provider.ErrTypeUserSessionNotFound, "The current user session could not be found.")
}

func (s *Server) handleSendVerification(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	redirect, err := url.Parse(body.URL)
	if err != nil || redirect.Host == "" {
		writeError(writer, http.StatusBadRequest, provider.ErrTypeArgumentInvalid, "Invalid `url` param: URL must be absolute")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, _, ok := s.authenticateLocked(writer, request)
	if !ok {
		return
	}
	secret := randomID() + randomID()
	token := &fakeToken{
		id:      randomID(),
		userID:  user.id,
		kind:    tokenVerification,
		expires: s.clock.Now().Add(TokenLifetime),
	}
	s.tokens[secret] = token
	s.links[strings.ToLower(user.email)] = appendParams(redirect, user.id, secret)

	writeJSON(writer, http.StatusCreated, provider.Token{ID: token.id, UserID: user.id})
}

func (s *Server) handleVerify(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Secret string `json:"secret"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[body.Secret]
	if !ok || token.used || token.kind != tokenVerification || token.userID != body.UserID || s.clock.Now().After(token.expires) {
		writeError(writer, http.StatusUnauthorized, provider.ErrTypeUserInvalidToken, "Invalid token passed in the request.")
		return
	}
	token.used = true
	s.users[token.userID].verified = true

	writeJSON(writer, http.StatusOK, provider.Token{ID: token.id, UserID: token.userID})
}

func (s *Server) handleListDocuments(writer http.ResponseWriter, request *http.Request) {
	var specs []provider.QuerySpec
	for _, raw := range request.URL.Query()["queries[]"] {
		spec, err := provider.ParseQuery(raw)
		if err != nil {
			writeError(writer, http.StatusBadRequest, "general_query_invalid", err.Error())
			return
		}
		specs = append(specs, spec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.authenticateLocked(writer, request); !ok {
		return
	}

	entries := s.sortedLocked(request.PathValue("database"), request.PathValue("collection"))
	limit := defaultListLimit
	var ordering []provider.QuerySpec

	for _, spec := range specs {
		switch spec.Method {
		case provider.MethodEqual:
			entries = filterEqual(entries, spec)
		case provider.MethodOrderAsc, provider.MethodOrderDesc:
			ordering = append(ordering, spec)
		case provider.MethodLimit:
			if len(spec.Values) == 1 {
				if n, ok := spec.Values[0].(float64); ok {
					limit = int(n)
				}
			}
		default:
			writeError(writer, http.StatusBadRequest, "general_query_invalid", "Invalid query method: "+spec.Method)
			return
		}
	}

	if len(ordering) > 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return lessByOrdering(entries[i], entries[j], ordering)
		})
	}

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	documents := make([]provider.Document, 0, len(entries))
	for _, entry := range entries {
		documents = append(documents, entry.document)
	}
	writeJSON(writer, http.StatusOK, provider.DocumentList{Total: total, Documents: documents})
}

func (s *Server) handleCreateDocument(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		DocumentID string         `json:"documentId"`
		Data       map[string]any `json:"data"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	if body.Data == nil {
		writeError(writer, http.StatusBadRequest, provider.ErrTypeDocumentInvalid, "Invalid document structure: Missing data")
		return
	}
	for key := range body.Data {
		if strings.HasPrefix(key, "$") {
			writeError(writer, http.StatusBadRequest, provider.ErrTypeDocumentInvalid, "Invalid document structure: Unknown attribute: "+key)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.authenticateLocked(writer, request); !ok {
		return
	}

	databaseID, collectionID := request.PathValue("database"), request.PathValue("collection")
	key := collectionKey(databaseID, collectionID)
	if s.documents[key] == nil {
		s.documents[key] = make(map[string]*storedDocument)
	}

	documentID := body.DocumentID
	if documentID == "" || documentID == "unique()" {
		documentID = randomID()
	}
	if _, exists := s.documents[key][documentID]; exists {
		writeError(writer, http.StatusConflict, provider.ErrTypeDocumentAlreadyExists, "Document with the requested ID already exists.")
		return
	}

	now := s.clock.Now().UTC()
	s.sequence++
	stored := &storedDocument{
		sequence: s.sequence,
		document: provider.Document{
			ID:           documentID,
			CollectionID: collectionID,
			DatabaseID:   databaseID,
			CreatedAt:    now,
			UpdatedAt:    now,
			Data:         body.Data,
		},
	}
	s.documents[key][documentID] = stored
	writeJSON(writer, http.StatusCreated, stored.document)
}

func (s *Server) handleGetDocument(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.authenticateLocked(writer, request); !ok {
		return
	}
	stored := s.lookupLocked(request)
	if stored == nil {
		writeError(writer, http.StatusNotFound, provider.ErrTypeDocumentNotFound, "Document with the requested ID could not be found.")
		return
	}
	writeJSON(writer, http.StatusOK, stored.document)
}

func (s *Server) handleUpdateDocument(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		Data map[string]any `json:"data"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.authenticateLocked(writer, request); !ok {
		return
	}
	stored := s.lookupLocked(request)
	if stored == nil {
		writeError(writer, http.StatusNotFound, provider.ErrTypeDocumentNotFound, "Document with the requested ID could not be found.")
		return
	}

	merged := make(map[string]any, len(stored.document.Data)+len(body.Data))
	for key, value := range stored.document.Data {
		merged[key] = value
	}
	for key, value := range body.Data {
		merged[key] = value
	}
	stored.document.Data = merged
	stored.document.UpdatedAt = s.clock.Now().UTC()
	writeJSON(writer, http.StatusOK, stored.document)
}

func (s *Server) lookupLocked(request *http.Request) *storedDocument {
	key := collectionKey(request.PathValue("database"), request.PathValue("collection"))
	return s.documents[key][request.PathValue("document")]
}

// authenticateLocked resolves the session header. On failure it writes
// the 401 response and returns ok=false.
func (s *Server) authenticateLocked(writer http.ResponseWriter, request *http.Request) (*fakeUser, string, bool) {
	secret := request.Header.Get(provider.HeaderSession)
	session, ok := s.sessions[secret]
	if secret == "" || !ok {
		writeError(writer, http.StatusUnauthorized, provider.ErrTypeUnauthorized, "User (role: guests) missing scope (account)")
		return nil, "", false
	}
	return s.users[session.userID], secret, true
}

func (s *Server) ensureUserLocked(candidateID, email string) *fakeUser {
	normalized := strings.ToLower(email)
	if id, ok := s.byEmail[normalized]; ok {
		return s.users[id]
	}
	user := &fakeUser{id: candidateID, email: email, created: s.clock.Now().UTC()}
	s.users[user.id] = user
	s.byEmail[normalized] = user.id
	return user
}

func (s *Server) newSessionLocked(userID string) string {
	secret := randomID() + randomID()
	s.sessions[secret] = &fakeSession{id: randomID(), userID: userID}
	return secret
}

func (s *Server) sortedLocked(databaseID, collectionID string) []*storedDocument {
	collection := s.documents[collectionKey(databaseID, collectionID)]
	entries := make([]*storedDocument, 0, len(collection))
	for _, entry := range collection {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].sequence < entries[j].sequence })
	return entries
}

func (u *fakeUser) toProvider() provider.User {
	return provider.User{
		ID:                u.id,
		CreatedAt:         u.created.Format(time.RFC3339Nano),
		Name:              u.name,
		Email:             u.email,
		EmailVerification: u.verified,
		Status:            true,
	}
}

func filterEqual(entries []*storedDocument, spec provider.QuerySpec) []*storedDocument {
	var matched []*storedDocument
	for _, entry := range entries {
		value := attributeValue(entry, spec.Attribute)
		for _, candidate := range spec.Values {
			if fmt.Sprint(candidate) == fmt.Sprint(value) {
				matched = append(matched, entry)
				break
			}
		}
	}
	return matched
}

// lessByOrdering compares two documents under the given orderings.
// Creation-time ties fall back to insertion order, so documents
// created within the same clock tick still sort deterministically.
func lessByOrdering(a, b *storedDocument, ordering []provider.QuerySpec) bool {
	for _, spec := range ordering {
		descending := spec.Method == provider.MethodOrderDesc
		var comparison int
		if spec.Attribute == "$createdAt" {
			comparison = a.document.CreatedAt.Compare(b.document.CreatedAt)
			if comparison == 0 {
				comparison = compareInt(a.sequence, b.sequence)
			}
		} else {
			comparison = strings.Compare(fmt.Sprint(attributeValue(a, spec.Attribute)), fmt.Sprint(attributeValue(b, spec.Attribute)))
		}
		if comparison == 0 {
			continue
		}
		if descending {
			return comparison > 0
		}
		return comparison < 0
	}
	return a.sequence < b.sequence
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func attributeValue(entry *storedDocument, attribute string) any {
	switch attribute {
	case "$id":
		return entry.document.ID
	case "$createdAt":
		return entry.document.CreatedAt.Format(time.RFC3339Nano)
	}
	return entry.document.Data[attribute]
}

func collectionKey(databaseID, collectionID string) string {
	return databaseID + "/" + collectionID
}

func appendParams(redirect *url.URL, userID, secret string) string {
	link := *redirect
	query := link.Query()
	query.Set("userId", userID)
	query.Set("secret", secret)
	link.RawQuery = query.Encode()
	return link.String()
}

func randomID() string {
	buffer := make([]byte, 10)
	if _, err := rand.Read(buffer); err != nil {
		panic("providertest: reading random bytes: " + err.Error())
	}
	return hex.EncodeToString(buffer)
}

func decodeBody(writer http.ResponseWriter, request *http.Request, target any) bool {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		writeError(writer, http.StatusBadRequest, provider.ErrTypeArgumentInvalid, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status int, errorType, message string) {
	writeJSON(writer, status, provider.Error{Code: status, Type: errorType, Message: message})
}
