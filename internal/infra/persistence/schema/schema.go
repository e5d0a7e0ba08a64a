// Package schema embeds the DDL applied by the SQL-backed stores on open.
package schema

import (
	"bufio"
	_ "embed"
	"strings"
)

//go:embed sqlite.sql
var sqliteDDL string

//go:embed postgres.sql
var postgresDDL string

// SQLite returns the SQLite DDL.
func SQLite() string { return sqliteDDL }

// Postgres returns the Postgres DDL.
func Postgres() string { return postgresDDL }

// Tables lists the tables created by both bundles.
var Tables = []string{"field_definitions", "field_groups", "records", "field_values"}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// Blank lines and "--" comment lines are dropped.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
