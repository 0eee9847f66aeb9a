package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beniforreal/nbti-client/internal/errs"
)

// maxFieldLen caps free-text fields before sanitization.
const maxFieldLen = 1000

var (
	tagRe     = regexp.MustCompile(`<[^>]*>`)
	handlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	keywordRe = regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|create|alter|exec|union|script)\b`)

	// Unescaping known entities before escaping makes Sanitize a fixed
	// point: a second application cannot double-escape.
	unescaper = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#x27;", "'",
		"&#39;", "'",
	)
	escaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
)

// Sanitize strips markup tags, inline event-handler attributes, and
// query-language keyword fragments, then escapes dangerous punctuation.
// It is idempotent: Sanitize(Sanitize(s)) == Sanitize(s). This is
// defense-in-depth for data later rendered as HTML, not a substitute for
// output encoding at render time.
func Sanitize(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = handlerRe.ReplaceAllString(s, "")
	s = keywordRe.ReplaceAllString(s, "")
	s = unescaper.Replace(s)
	s = escaper.Replace(s)
	return strings.TrimSpace(s)
}

// ValidateFields sanitizes every string field and rejects oversized values.
// Non-string values pass through untouched.
func ValidateFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if s, ok := value.(string); ok {
			if len(s) > maxFieldLen {
				return nil, fmt.Errorf("%w: field %s exceeds maximum length", errs.ErrValidation, key)
			}
			out[key] = Sanitize(s)
			continue
		}
		out[key] = value
	}
	return out, nil
}
