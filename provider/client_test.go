// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient starts handler behind an httptest server and returns a
// client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *MemoryCredentials) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	credentials := &MemoryCredentials{}
	client, err := NewClient(ClientConfig{
		Endpoint:    server.URL + "/v1",
		ProjectID:   "hazards",
		Logger:      slog.New(slog.DiscardHandler),
		Credentials: credentials,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, credentials
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{"valid", ClientConfig{Endpoint: "https://baas.example.com/v1", ProjectID: "p"}, false},
		{"empty endpoint", ClientConfig{ProjectID: "p"}, true},
		{"empty project", ClientConfig{Endpoint: "https://baas.example.com/v1"}, true},
		{"not http", ClientConfig{Endpoint: "ftp://baas.example.com", ProjectID: "p"}, true},
		{"unparseable", ClientConfig{Endpoint: "://invalid", ProjectID: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestHeaders(t *testing.T) {
	client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get(HeaderProject); got != "hazards" {
			t.Errorf("%s = %q, want %q", HeaderProject, got, "hazards")
		}
		if got := request.Header.Get(HeaderSession); got != "stored-secret" {
			t.Errorf("%s = %q, want %q", HeaderSession, got, "stored-secret")
		}
		if got := request.Header.Get(HeaderResponseFormat); got != ResponseFormat {
			t.Errorf("%s = %q, want %q", HeaderResponseFormat, got, ResponseFormat)
		}
		writeJSON(writer, http.StatusOK, map[string]any{"$id": "u1", "email": "a@example.com"})
	})
	credentials.Save("stored-secret")

	user, err := client.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "u1")
	}
}

func TestGetWithoutSessionSkipsNetwork(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		calls++
		writeJSON(writer, http.StatusOK, map[string]any{})
	})

	_, err := client.Get(context.Background())
	if !IsErrorType(err, ErrTypeUnauthorized) {
		t.Fatalf("Get() error = %v, want %s", err, ErrTypeUnauthorized)
	}
	if calls != 0 {
		t.Errorf("server saw %d calls, want 0", calls)
	}
}

func TestErrorResponse(t *testing.T) {
	client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusConflict, map[string]any{
			"message": "Document with the requested ID already exists.",
			"code":    409,
			"type":    ErrTypeDocumentAlreadyExists,
		})
	})
	credentials.Save("s")

	_, err := client.CreateDocument(context.Background(), "db", "duplicates", "d1", map[string]any{"postId": "p1"})
	if err == nil {
		t.Fatal("expected error")
	}

	var providerErr *Error
	if !errors.As(err, &providerErr) {
		t.Fatalf("error %v is not *Error", err)
	}
	if providerErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", providerErr.StatusCode)
	}
	if !IsErrorType(err, ErrTypeDocumentAlreadyExists) {
		t.Errorf("IsErrorType(%v) = false", err)
	}
	if StatusCode(err) != http.StatusConflict {
		t.Errorf("StatusCode(err) = %d, want 409", StatusCode(err))
	}
}

func TestNonJSONErrorResponse(t *testing.T) {
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := client.ServerVersion(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var providerErr *Error
	if errors.As(err, &providerErr) {
		t.Errorf("non-JSON body should not produce *Error, got %v", providerErr)
	}
}

func TestSessionSecretCapture(t *testing.T) {
	tests := []struct {
		name  string
		write func(http.ResponseWriter)
	}{
		{
			name: "cookie",
			write: func(writer http.ResponseWriter) {
				http.SetCookie(writer, &http.Cookie{Name: "a_session_hazards", Value: "from-cookie"})
			},
		},
		{
			name: "fallback header",
			write: func(writer http.ResponseWriter) {
				writer.Header().Set(HeaderFallbackCookies, `{"a_session_hazards":"from-cookie"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
				if request.Method != http.MethodPut || request.URL.Path != "/v1/account/sessions/magic-url" {
					t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
				}
				tt.write(writer)
				writeJSON(writer, http.StatusCreated, map[string]any{"$id": "s1", "userId": "u1"})
			})

			session, err := client.UpdateMagicURLSession(context.Background(), "u1", "one-time")
			if err != nil {
				t.Fatalf("UpdateMagicURLSession: %v", err)
			}
			if session.ID != "s1" {
				t.Errorf("session.ID = %q, want %q", session.ID, "s1")
			}
			stored, _ := credentials.Load()
			if stored != "from-cookie" {
				t.Errorf("stored secret = %q, want %q", stored, "from-cookie")
			}
		})
	}
}

func TestSessionWithoutSecretFails(t *testing.T) {
	client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusCreated, map[string]any{"$id": "s1", "userId": "u1"})
	})

	if _, err := client.CreateSession(context.Background(), "u1", "one-time"); err == nil {
		t.Fatal("expected error when no secret is returned")
	}
	if stored, _ := credentials.Load(); stored != "" {
		t.Errorf("stored secret = %q, want empty", stored)
	}
}

func TestRedeemRequiresParameters(t *testing.T) {
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		t.Error("no request expected")
	})
	if _, err := client.CreateSession(context.Background(), "", "secret"); err == nil {
		t.Error("expected error for empty userId")
	}
	if _, err := client.UpdateMagicURLSession(context.Background(), "u1", ""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestDeleteCurrentSessionClearsCredentials(t *testing.T) {
	client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodDelete || request.URL.Path != "/v1/account/sessions/current" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		writer.WriteHeader(http.StatusNoContent)
	})
	credentials.Save("s")

	if err := client.DeleteSession(context.Background(), "current"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if stored, _ := credentials.Load(); stored != "" {
		t.Errorf("stored secret = %q, want empty", stored)
	}
	if has, _ := client.HasSession(); has {
		t.Error("HasSession() = true after logout")
	}
}

func TestDeleteExpiredSessionSucceeds(t *testing.T) {
	client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusUnauthorized, map[string]any{
			"message": "User (role: guests) missing scope (account)",
			"code":    401,
			"type":    ErrTypeUnauthorized,
		})
	})
	credentials.Save("stale")

	if err := client.DeleteSession(context.Background(), ""); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if stored, _ := credentials.Load(); stored != "" {
		t.Errorf("stale secret not cleared: %q", stored)
	}
}

func TestListDocumentsQueries(t *testing.T) {
	client, credentials := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/databases/crowdsync/collections/posts/documents" {
			t.Errorf("path = %s", request.URL.Path)
		}
		queries := request.URL.Query()["queries[]"]
		if len(queries) != 3 {
			t.Fatalf("got %d queries, want 3", len(queries))
		}
		first, err := ParseQuery(queries[0])
		if err != nil {
			t.Fatalf("ParseQuery: %v", err)
		}
		if first.Method != MethodEqual || first.Attribute != "pincode" || first.Values[0] != "560001" {
			t.Errorf("first query = %+v", first)
		}
		writeJSON(writer, http.StatusOK, map[string]any{
			"total": 12,
			"documents": []map[string]any{{
				"$id":           "r1",
				"$collectionId": "posts",
				"$databaseId":   "crowdsync",
				"$createdAt":    "2026-03-01T10:00:00.000+00:00",
				"$permissions":  []string{},
				"pincode":       "560001",
			}},
		})
	})
	credentials.Save("s")

	list, err := client.ListDocuments(context.Background(), "crowdsync", "posts",
		Equal("pincode", "560001"), OrderDesc("$createdAt"), Limit(10))
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if list.Total != 12 || len(list.Documents) != 1 {
		t.Fatalf("list = %+v", list)
	}
	document := list.Documents[0]
	if document.ID != "r1" || document.CollectionID != "posts" {
		t.Errorf("document metadata = %+v", document)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !document.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", document.CreatedAt, want)
	}
	if _, leaked := document.Data["$permissions"]; leaked {
		t.Error("system attribute leaked into Data")
	}
	if document.Data["pincode"] != "560001" {
		t.Errorf("Data[pincode] = %v", document.Data["pincode"])
	}
}

func TestParseQueryRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "equal(pincode)", `{"attribute":"x"}`} {
		if _, err := ParseQuery(raw); err == nil {
			t.Errorf("ParseQuery(%q) succeeded", raw)
		}
	}
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(&Error{Type: ErrTypeRateLimited, StatusCode: 429})
	if len(attrs) != 6 || attrs[3] != ErrTypeRateLimited {
		t.Errorf("LogAttrs = %v", attrs)
	}
	if attrs := LogAttrs(errors.New("plain")); len(attrs) != 2 {
		t.Errorf("LogAttrs(plain) = %v", attrs)
	}
}
