// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool behind the local
// document store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies the same
// pragmas to every connection: WAL journaling, NORMAL synchronous,
// a five second busy timeout, enforced foreign keys, and in-memory
// temp storage. Callers write SQL directly with sqlitex.Execute and
// manage transactions with sqlitex.ImmediateTransaction.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:      filepath.Join(stateDir, "documents.db"),
//	    Logger:    logger,
//	    OnConnect: func(conn *sqlite.Conn) error { return sqlitex.ExecuteScript(conn, schema, nil) },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
