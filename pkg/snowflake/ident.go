package snowflake

import (
	"regexp"
	"strings"
)

var (
	// names the warehouse resolves case-insensitively when left unquoted
	plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	// names as the warehouse reports them when they were created unquoted
	storedIdent = regexp.MustCompile(`^[A-Z_][A-Z0-9_$]*$`)
)

// QuoteIdent double-quotes name, doubling embedded quotes
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes s, doubling embedded quotes
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// identifiers renders caller-supplied and warehouse-reported names
type identifiers struct {
	quoteAll bool
}

// name renders a caller-supplied identifier
func (q identifiers) name(name string) string {
	if !q.quoteAll && plainIdent.MatchString(name) {
		return name
	}
	return QuoteIdent(name)
}

// stored renders an identifier exactly as the warehouse reported it
func (q identifiers) stored(name string) string {
	if storedIdent.MatchString(name) {
		return name
	}
	return QuoteIdent(name)
}

// table renders database.schema.table
func (q identifiers) table(database, schema, table string) string {
	return q.name(database) + "." + q.name(schema) + "." + q.name(table)
}

// resolved returns the name the warehouse will report for a caller-supplied
// identifier.
func (q identifiers) resolved(name string) string {
	if !q.quoteAll && plainIdent.MatchString(name) {
		return strings.ToUpper(name)
	}
	return name
}
