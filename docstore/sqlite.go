// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/crowdsync/crowdsync/lib/clock"
	"github.com/crowdsync/crowdsync/lib/codec"
	"github.com/crowdsync/crowdsync/lib/sqlitepool"
)

// Bodies are CBOR maps. Scalar fields are copied into document_fields
// so equality filters can use an index instead of decoding bodies.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	body       BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS document_fields (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (collection, id, field),
	FOREIGN KEY (collection, id) REFERENCES documents (collection, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS document_fields_by_value
	ON document_fields (collection, field, value);

CREATE INDEX IF NOT EXISTS documents_by_created
	ON documents (collection, created_at);
`

// SQLiteConfig configures a local document store.
type SQLiteConfig struct {
	// Path is the database file.
	Path   string
	Clock  clock.Clock
	Logger *slog.Logger
}

// SQLite is a single-user document store in a local database file. It
// gives the same ordering and uniqueness guarantees as the backend:
// creation order is (created_at, rowid) and (collection, id) is the
// primary key.
type SQLite struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}
	return &SQLite{pool: pool, clock: timeSource, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

func (s *SQLite) List(ctx context.Context, collection string, query Query) (Page, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Page{}, err
	}
	defer s.pool.Put(conn)

	var where strings.Builder
	where.WriteString("d.collection = ?")
	args := []any{collection}
	for _, filter := range query.Filters {
		where.WriteString(` AND EXISTS (SELECT 1 FROM document_fields f
			WHERE f.collection = d.collection AND f.id = d.id AND f.field = ? AND f.value = ?)`)
		args = append(args, filter.Field, filter.Value)
	}

	var page Page
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM documents d WHERE "+where.String(), &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			page.Total = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return Page{}, fmt.Errorf("docstore: counting %s: %w", collection, err)
	}

	direction := "ASC"
	if query.NewestFirst {
		direction = "DESC"
	}
	statement := "SELECT d.id, d.created_at, d.updated_at, d.body FROM documents d WHERE " + where.String() +
		" ORDER BY d.created_at " + direction + ", d.rowid " + direction
	if query.Limit > 0 {
		statement += " LIMIT ?"
		args = append(args, query.Limit)
	}

	err = sqlitex.Execute(conn, statement, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			document, err := scanDocument(collection, stmt)
			if err != nil {
				return err
			}
			page.Documents = append(page.Documents, document)
			return nil
		},
	})
	if err != nil {
		return Page{}, fmt.Errorf("docstore: listing %s: %w", collection, err)
	}
	return page, nil
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Document{}, err
	}
	defer s.pool.Put(conn)
	return getDocument(conn, collection, id)
}

func (s *SQLite) Create(ctx context.Context, collection, id string, fields map[string]any) (document Document, err error) {
	if id == "" {
		id = NewID()
	}
	body, err := codec.Marshal(fields)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: encoding %s/%s: %w", collection, id, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Document{}, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: begin: %w", err)
	}
	defer endTransaction(&err)

	exists, err := documentExists(conn, collection, id)
	if err != nil {
		return Document{}, err
	}
	if exists {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrConflict, collection, id)
	}

	now := s.clock.Now().UTC()
	err = sqlitex.Execute(conn,
		"INSERT INTO documents (collection, id, created_at, updated_at, body) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{collection, id, now.UnixNano(), now.UnixNano(), body}})
	if err != nil {
		if sqlite.ErrCode(err).ToPrimary() == sqlite.ResultConstraint {
			return Document{}, fmt.Errorf("%w: %s/%s", ErrConflict, collection, id)
		}
		return Document{}, fmt.Errorf("docstore: inserting %s/%s: %w", collection, id, err)
	}
	if err := indexFields(conn, collection, id, fields); err != nil {
		return Document{}, err
	}

	s.logger.Debug("document created", "collection", collection, "document_id", id)
	return Document{ID: id, Collection: collection, CreatedAt: now, UpdatedAt: now, Fields: fields}, nil
}

func (s *SQLite) Update(ctx context.Context, collection, id string, fields map[string]any) (document Document, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Document{}, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: begin: %w", err)
	}
	defer endTransaction(&err)

	existing, err := getDocument(conn, collection, id)
	if err != nil {
		return Document{}, err
	}

	merged := make(map[string]any, len(existing.Fields)+len(fields))
	for key, value := range existing.Fields {
		merged[key] = value
	}
	for key, value := range fields {
		merged[key] = value
	}
	body, err := codec.Marshal(merged)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: encoding %s/%s: %w", collection, id, err)
	}

	now := s.clock.Now().UTC()
	err = sqlitex.Execute(conn,
		"UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?",
		&sqlitex.ExecOptions{Args: []any{body, now.UnixNano(), collection, id}})
	if err != nil {
		return Document{}, fmt.Errorf("docstore: updating %s/%s: %w", collection, id, err)
	}
	if err := indexFields(conn, collection, id, fields); err != nil {
		return Document{}, err
	}

	existing.Fields = merged
	existing.UpdatedAt = now
	return existing, nil
}

// RawBody returns the stored CBOR body of a document, for inspection.
func (s *SQLite) RawBody(ctx context.Context, collection, id string) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var body []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT body FROM documents WHERE collection = ? AND id = ?", &sqlitex.ExecOptions{
		Args: []any{collection, id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			body = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, body)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: reading %s/%s: %w", collection, id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return body, nil
}

func getDocument(conn *sqlite.Conn, collection, id string) (Document, error) {
	var document Document
	found := false
	err := sqlitex.Execute(conn,
		"SELECT d.id, d.created_at, d.updated_at, d.body FROM documents d WHERE d.collection = ? AND d.id = ?",
		&sqlitex.ExecOptions{
			Args: []any{collection, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				document, err = scanDocument(collection, stmt)
				found = err == nil
				return err
			},
		})
	if err != nil {
		return Document{}, fmt.Errorf("docstore: reading %s/%s: %w", collection, id, err)
	}
	if !found {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return document, nil
}

func documentExists(conn *sqlite.Conn, collection, id string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM documents WHERE collection = ? AND id = ?", &sqlitex.ExecOptions{
		Args: []any{collection, id},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("docstore: checking %s/%s: %w", collection, id, err)
	}
	return exists, nil
}

// indexFields records scalar fields for equality filtering. Lists and
// maps are not indexed.
func indexFields(conn *sqlite.Conn, collection, id string, fields map[string]any) error {
	for field, value := range fields {
		var text string
		switch typed := value.(type) {
		case string:
			text = typed
		case bool, int, int64, uint64, float64:
			text = fmt.Sprint(typed)
		default:
			continue
		}
		err := sqlitex.Execute(conn,
			"INSERT OR REPLACE INTO document_fields (collection, id, field, value) VALUES (?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{collection, id, field, text}})
		if err != nil {
			return fmt.Errorf("docstore: indexing %s/%s.%s: %w", collection, id, field, err)
		}
	}
	return nil
}

func scanDocument(collection string, stmt *sqlite.Stmt) (Document, error) {
	id := stmt.ColumnText(0)
	body := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, body)

	var fields map[string]any
	if err := codec.Unmarshal(body, &fields); err != nil {
		return Document{}, fmt.Errorf("docstore: decoding %s/%s: %w", collection, id, err)
	}
	return Document{
		ID:         id,
		Collection: collection,
		CreatedAt:  time.Unix(0, stmt.ColumnInt64(1)).UTC(),
		UpdatedAt:  time.Unix(0, stmt.ColumnInt64(2)).UTC(),
		Fields:     fields,
	}, nil
}
