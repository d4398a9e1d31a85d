// Package sanitize cleans text crossing a trust boundary.
//
// Visitor input is only trimmed: it is escaped at render time and relayed
// as entered. Text from upstream services that is shown back to visitors
// has its markup removed.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text trims s and removes every HTML element. Entities produced by the
// policy are decoded again so plain text such as "R&D" survives unchanged.
// It loses text that merely looks like a tag, so it must not be applied to
// visitor input.
func Text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, "<>&") {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Values returns a copy of m with keys and values trimmed. Values are
// otherwise untouched.
func Values(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
