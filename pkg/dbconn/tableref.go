package dbconn

import "strings"

// TableReference identifies a table, view or table function within a
// connection's namespace. A reference is bare (table only), partial
// (schema.table) or full (catalog.schema.table).
type TableReference struct {
	Catalog string
	Schema  string
	Table   string
}

// BareTableReference builds a reference consisting of only a table name.
func BareTableReference(table string) TableReference {
	return TableReference{Table: table}
}

// ParseTableReference splits a dotted reference string into its parts.
// Double-quoted segments may contain dots; quotes are stripped from the
// parsed parts. More than three segments collapse the extras into the
// catalog part, mirroring a best-effort parse rather than failing.
func ParseTableReference(ref string) TableReference {
	parts := splitQualified(ref)
	switch len(parts) {
	case 0:
		return TableReference{}
	case 1:
		return TableReference{Table: parts[0]}
	case 2:
		return TableReference{Schema: parts[0], Table: parts[1]}
	case 3:
		return TableReference{Catalog: parts[0], Schema: parts[1], Table: parts[2]}
	default:
		n := len(parts)
		return TableReference{
			Catalog: strings.Join(parts[:n-2], "."),
			Schema:  parts[n-2],
			Table:   parts[n-1],
		}
	}
}

// splitQualified splits on dots that are not inside double quotes.
func splitQualified(ref string) []string {
	var parts []string
	var sb strings.Builder
	inQuote := false
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c == '"':
			// a doubled quote inside a quoted segment is an escaped quote
			if inQuote && i+1 < len(ref) && ref[i+1] == '"' {
				sb.WriteByte('"')
				i++
				continue
			}
			inQuote = !inQuote
		case c == '.' && !inQuote:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	parts = append(parts, sb.String())
	return parts
}

// IsBare reports whether the reference carries neither schema nor catalog.
func (r TableReference) IsBare() bool {
	return r.Catalog == "" && r.Schema == ""
}

// String returns the dotted, unquoted form of the reference.
func (r TableReference) String() string {
	parts := make([]string, 0, 3)
	if r.Catalog != "" {
		parts = append(parts, r.Catalog)
	}
	if r.Schema != "" {
		parts = append(parts, r.Schema)
	}
	parts = append(parts, r.Table)
	return strings.Join(parts, ".")
}

// QuotedString returns the dotted form with every part double-quoted,
// escaping embedded quotes by doubling them.
func (r TableReference) QuotedString() string {
	parts := make([]string, 0, 3)
	if r.Catalog != "" {
		parts = append(parts, QuoteIdentifier(r.Catalog))
	}
	if r.Schema != "" {
		parts = append(parts, QuoteIdentifier(r.Schema))
	}
	parts = append(parts, QuoteIdentifier(r.Table))
	return strings.Join(parts, ".")
}

// QuoteIdentifier double-quotes a single identifier, escaping embedded
// quotes by doubling them.
func QuoteIdentifier(ident string) string {
	escaped := strings.ReplaceAll(ident, `"`, `""`)
	return `"` + escaped + `"`
}
