// Package sqlbundle hands the embedded snapshot DDL to the persistence
// drivers as executable statements.
package sqlbundle

import (
	"bufio"
	"strings"

	sqldocs "recordcore/docs/schema/sql"
)

// SQLite returns the snapshot-table DDL for the sqlite store.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the snapshot-table DDL for the postgres store.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated DDL script into executable
// statements, dropping blank lines and "--" comments.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
