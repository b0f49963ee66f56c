package odata

import (
	"regexp"
	"strings"

	"github.com/roach88/geoquery/internal/query"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokLiteral
	tokEnum
	tokAlias
	tokLParen
	tokRParen
	tokComma
	tokColon
	tokMinus
)

type token struct {
	kind tokenKind
	text string
	pos  int

	// typeName is the Edm type of a tokLiteral, or the enum type of a tokEnum.
	typeName string
}

// Literal patterns, tried in order at a digit or hex letter.
var literalPatterns = []struct {
	re       *regexp.Regexp
	typeName string
}{
	{regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}`), EdmGuid},
	{regexp.MustCompile(`^-?\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:\d{2})`), EdmDateTimeOffset},
	{regexp.MustCompile(`^-?\d{4}-\d{2}-\d{2}`), EdmDate},
	{regexp.MustCompile(`^\d{2}:\d{2}(:\d{2}(\.\d+)?)?`), EdmTimeOfDay},
}

var (
	numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?[mMdDfFlL]?`)
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*(/[A-Za-z_$][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*)*`)
)

// Prefixes of the quoted typed literals of OData v2/v3, e.g. datetime'...'.
var typedPrefixes = map[string]string{
	"datetime":       EdmDateTime,
	"datetimeoffset": EdmDateTimeOffset,
	"guid":           EdmGuid,
	"time":           EdmTimeOfDay,
	"binary":         EdmBinary,
}

// lex splits a $filter expression into tokens.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case ch == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case ch == ':':
			toks = append(toks, token{kind: tokColon, text: ":", pos: i})
			i++
		case ch == '\'':
			text, n, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokLiteral, text: text, typeName: EdmString, pos: i})
			i += n
		case ch == '@':
			m := identPattern.FindString(input[i+1:])
			if m == "" {
				return nil, query.NewParseError("expected alias name at position %d", i)
			}
			toks = append(toks, token{kind: tokAlias, text: m, pos: i})
			i += 1 + len(m)
		default:
			tok, n, err := scanWord(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(input)}), nil
}

// scanWord scans a literal, identifier or typed literal starting at i.
func scanWord(input string, i int) (token, int, error) {
	rest := input[i:]
	for _, p := range literalPatterns {
		if m := p.re.FindString(rest); m != "" && !continuesWord(rest, len(m)) {
			return token{kind: tokLiteral, text: m, typeName: p.typeName, pos: i}, len(m), nil
		}
	}
	if m := numberPattern.FindString(rest); m != "" && !continuesWord(rest, len(m)) {
		return token{kind: tokLiteral, text: m, typeName: numberType(m), pos: i}, len(m), nil
	}
	if rest[0] == '-' {
		return token{kind: tokMinus, text: "-", pos: i}, 1, nil
	}

	m := identPattern.FindString(rest)
	if m == "" {
		return token{}, 0, query.NewParseError("unexpected character %q at position %d", rest[0], i)
	}
	if len(m) < len(rest) && rest[len(m)] == '\'' {
		text, n, err := scanString(input, i+len(m))
		if err != nil {
			return token{}, 0, err
		}
		if typeName, ok := typedPrefixes[strings.ToLower(m)]; ok {
			return token{kind: tokLiteral, text: text, typeName: typeName, pos: i}, len(m) + n, nil
		}
		if strings.Contains(m, ".") {
			return token{kind: tokEnum, text: text, typeName: m, pos: i}, len(m) + n, nil
		}
		return token{}, 0, query.NewParseError("unknown literal prefix %q at position %d", m, i)
	}
	return token{kind: tokIdent, text: m, pos: i}, len(m), nil
}

// continuesWord reports whether the match of length n is followed by more
// word characters, in which case it was a prefix of an identifier.
func continuesWord(s string, n int) bool {
	if n >= len(s) {
		return false
	}
	c := s[n]
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// scanString scans a single-quoted string starting at i, unescaping doubled
// quotes. It returns the content and the length consumed.
func scanString(input string, i int) (string, int, error) {
	var sb strings.Builder
	for j := i + 1; j < len(input); j++ {
		if input[j] != '\'' {
			sb.WriteByte(input[j])
			continue
		}
		if j+1 < len(input) && input[j+1] == '\'' {
			sb.WriteByte('\'')
			j++
			continue
		}
		return sb.String(), j + 1 - i, nil
	}
	return "", 0, query.NewParseError("unterminated string starting at position %d", i)
}

// numberType infers the Edm type of a numeric literal from its form.
func numberType(text string) string {
	switch text[len(text)-1] {
	case 'm', 'M':
		return EdmDecimal
	case 'd', 'D':
		return EdmDouble
	case 'f', 'F':
		return EdmSingle
	case 'l', 'L':
		return EdmInt64
	}
	switch {
	case strings.ContainsAny(text, "eE"):
		return EdmDouble
	case strings.Contains(text, "."):
		return EdmDecimal
	case fitsInt32(text):
		return EdmInt32
	default:
		return EdmInt64
	}
}

func fitsInt32(text string) bool {
	digits := strings.TrimPrefix(text, "-")
	if len(digits) < 10 {
		return true
	}
	if len(digits) > 10 {
		return false
	}
	limit := "2147483647"
	if strings.HasPrefix(text, "-") {
		limit = "2147483648"
	}
	return digits <= limit
}
