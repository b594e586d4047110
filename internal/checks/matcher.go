package checks

import (
	"regexp"
	"strings"
)

// TextMatcher is a predicate over response text: either a plain substring
// or a regular expression with an expected match outcome.
type TextMatcher struct {
	plain       string
	regex       *regexp.Regexp
	expectation bool
}

// Plain matches if the text contains s.
func Plain(s string) TextMatcher {
	return TextMatcher{plain: s}
}

// Regex matches if re matching the text equals expectation.
func Regex(re *regexp.Regexp, expectation bool) TextMatcher {
	return TextMatcher{regex: re, expectation: expectation}
}

// Matches applies the matcher to text.
func (m TextMatcher) Matches(text string) bool {
	if m.regex != nil {
		return m.regex.MatchString(text) == m.expectation
	}
	return strings.Contains(text, m.plain)
}

// HeaderMatcher matches a single response header by name and value.
type HeaderMatcher struct {
	Key   TextMatcher
	Value TextMatcher
}
