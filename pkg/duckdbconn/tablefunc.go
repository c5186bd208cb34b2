package duckdbconn

import (
	"strings"
	"unicode"

	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
)

// IsTableFunction classifies a table reference as a table-valued function
// invocation, i.e. a bare name followed by a (possibly empty) parenthesized
// argument list, such as read_csv_auto('data.csv'). Qualified references are
// never function calls in this surface syntax, and any tokenize/parse
// failure classifies as a plain table: the check is advisory, not SQL
// validation.
func IsTableFunction(ref dbconn.TableReference) bool {
	if !ref.IsBare() {
		return false
	}
	return parseTableFactor(ref.Table)
}

// FlattenTableFunctionName produces a legal view-style identifier from a
// function-call reference, for contexts that expect a quoted identifier:
// all characters except alphanumerics and the opening parenthesis are
// stripped, the parenthesis becomes an underscore, and a fixed suffix is
// appended. read_csv_auto('f.csv') becomes readcsvauto_fcsv__view.
func FlattenTableFunctionName(ref dbconn.TableReference) string {
	var sb strings.Builder
	for _, c := range ref.Table {
		switch {
		case unicode.IsLetter(c) || unicode.IsDigit(c):
			sb.WriteRune(c)
		case c == '(':
			sb.WriteByte('_')
		}
	}
	return sb.String() + "__view"
}

// tokenType represents the type of a lexical token in a table reference.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenError
	tokenIdent
	tokenString
	tokenNumber
	tokenLParen
	tokenRParen
	tokenOther // commas, operators, anything legal inside an argument list
)

// token represents a lexical token.
type token struct {
	typ     tokenType
	literal string
}

// lexer tokenizes a table reference under the DuckDB dialect: bare or
// double-quoted identifiers, single-quoted strings with doubled-quote
// escapes, numbers, and parentheses.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) next() token {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF}
	}

	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{typ: tokenLParen, literal: "("}
	case ch == ')':
		l.pos++
		return token{typ: tokenRParen, literal: ")"}
	case ch == '\'':
		return l.readString()
	case ch == '"':
		return l.readQuotedIdent()
	case isIdentStart(ch):
		return l.readIdent()
	case isDigit(ch):
		return l.readNumber()
	default:
		l.pos++
		return token{typ: tokenOther, literal: string(ch)}
	}
}

// readString reads a single-quoted string literal. A doubled quote inside
// the literal is an escaped quote.
func (l *lexer) readString() token {
	start := l.pos
	l.pos++ // opening quote
	for l.pos < len(l.input) {
		if l.input[l.pos] == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				l.pos += 2
				continue
			}
			l.pos++
			return token{typ: tokenString, literal: l.input[start:l.pos]}
		}
		l.pos++
	}
	return token{typ: tokenError, literal: l.input[start:]} // unterminated
}

// readQuotedIdent reads a double-quoted identifier with doubled-quote
// escapes.
func (l *lexer) readQuotedIdent() token {
	start := l.pos
	l.pos++ // opening quote
	for l.pos < len(l.input) {
		if l.input[l.pos] == '"' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '"' {
				l.pos += 2
				continue
			}
			l.pos++
			return token{typ: tokenIdent, literal: l.input[start:l.pos]}
		}
		l.pos++
	}
	return token{typ: tokenError, literal: l.input[start:]} // unterminated
}

func (l *lexer) readIdent() token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return token{typ: tokenIdent, literal: l.input[start:l.pos]}
}

func (l *lexer) readNumber() token {
	start := l.pos
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
		l.pos++
	}
	return token{typ: tokenNumber, literal: l.input[start:l.pos]}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// parseTableFactor parses a single table factor and reports whether it is a
// function invocation: an identifier immediately followed by a balanced,
// fully consumed argument list. A bare identifier with no argument list, or
// anything malformed, is not a function invocation.
func parseTableFactor(input string) bool {
	l := newLexer(input)

	if tok := l.next(); tok.typ != tokenIdent {
		return false
	}
	if tok := l.next(); tok.typ != tokenLParen {
		return false
	}

	depth := 1
	for depth > 0 {
		switch tok := l.next(); tok.typ {
		case tokenLParen:
			depth++
		case tokenRParen:
			depth--
		case tokenEOF, tokenError:
			return false // unbalanced or unterminated
		default:
			// argument content: idents, strings, numbers, punctuation
		}
	}

	// the argument list must consume the rest of the reference
	return l.next().typ == tokenEOF
}
