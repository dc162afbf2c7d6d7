package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite())
	if len(stmts) == 0 {
		t.Fatal("expected sqlite DDL to produce statements")
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestBundlesDeclareStateTable(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS state") {
			t.Fatalf("%s DDL missing state table declaration", name)
		}
	}
	if !strings.Contains(Postgres(), "JSONB") {
		t.Fatal("postgres DDL must persist JSONB payloads")
	}
}
