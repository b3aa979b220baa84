// Package sanitize cleans collaborator-supplied text before it is written to
// the communication ledger.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)

	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// StripHTML removes markup, decodes the common entities and strips again so
// encoded tags do not survive.
func StripHTML(s string) string {
	result := tagPattern.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	return tagPattern.ReplaceAllString(result, "")
}

// Text prepares a reply, note or summary for the ledger. Markup and control
// characters are dropped, CRLF becomes LF and the result is trimmed.
func Text(s string) string {
	s = StripHTML(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
