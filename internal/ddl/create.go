// Package ddl is a small backend-agnostic model for the tables clipivot
// writes (diary entries and exported cells) and a renderer for CREATE TABLE
// statements.
//
// Storage backends supply a Dialect; this package never assumes one.
package ddl

import (
	"fmt"
	"strings"
)

// Dialect adapts rendering to one SQL flavour.
type Dialect interface {
	// QuoteIdent quotes a single identifier segment.
	QuoteIdent(id string) string
	// MapType maps a logical type (TypeText, ...) to a column type.
	MapType(logical string) string
	// CreateIfMissing wraps a CREATE TABLE body so it is a no-op when the
	// table already exists. quoted is the quoted table name.
	CreateIfMissing(quoted, body string) string
}

// QuoteFQN quotes each dot-separated segment of fqn with d.
func QuoteFQN(d Dialect, fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// BuildCreateTableSQL renders t for dialect d. A column is rendered as
//
//	<name> <type> [NOT NULL]
//
// and primary key columns are collected into a trailing PRIMARY KEY clause.
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		if strings.TrimSpace(c.Type) == "" {
			return "", fmt.Errorf("ddl: column %s missing type", name)
		}
		def := d.QuoteIdent(name) + " " + d.MapType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, d.QuoteIdent(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	quoted := QuoteFQN(d, fqn)
	body := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoted, strings.Join(cols, ",\n  "))
	return d.CreateIfMissing(quoted, body), nil
}
