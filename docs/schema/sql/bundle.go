// Package sqldocs exposes the snapshot-store DDL directly from the docs tree
// so the schema documentation and the executed schema cannot drift.
package sqldocs

import _ "embed"

// SQLite contains the snapshot-table DDL executed by the sqlite store.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the snapshot-table DDL executed by the postgres store.
//
//go:embed postgres.sql
var Postgres string
