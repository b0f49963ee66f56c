package query

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LikeRegexp converts a LIKE pattern to an anchored regular expression.
// Only `%` is a wildcard; every other character matches itself.
func LikeRegexp(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pattern)
	return regexp.MustCompile("(?s)^" + strings.ReplaceAll(quoted, "%", ".*") + "$")
}

// MatchLike applies LIKE semantics: two blank sides match, exactly one blank
// side does not, and otherwise the pattern must match the whole value.
// When fold is set both sides are upper-cased first.
func MatchLike(value, pattern string, fold bool) bool {
	vBlank := strings.TrimSpace(value) == ""
	pBlank := strings.TrimSpace(pattern) == ""
	switch {
	case vBlank && pBlank:
		return true
	case vBlank || pBlank:
		return false
	}
	if fold {
		value = Upper(value)
		pattern = Upper(pattern)
	}
	return LikeRegexp(pattern).MatchString(value)
}

// Upper upper-cases s with Unicode case mapping.
func Upper(s string) string {
	return cases.Upper(language.Und).String(s)
}
