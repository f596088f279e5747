// Package server implements the room-scoped chat relay: connection registry,
// presence tracking, broadcast fan-out, and the per-connection session loop.
package server

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxFieldLen caps every user-supplied string (nick, text, city, circle).
const maxFieldLen = 200

// anonNick is the fallback nickname when a client supplies none.
const anonNick = "anon"

// fieldPolicy strips all HTML; chat fields are plain text only.
var fieldPolicy = bluemonday.StrictPolicy()

// Sanitize normalizes one externally supplied string: HTML markup is
// stripped, entities the policy escaped are decoded back so plain punctuation
// survives untouched, surrounding whitespace trimmed, and the result
// truncated to 200 characters. Empty input yields the empty string.
// Re-sanitizing already-clean text is a no-op.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.TrimSpace(html.UnescapeString(fieldPolicy.Sanitize(s)))
	if runes := []rune(s); len(runes) > maxFieldLen {
		s = strings.TrimSpace(string(runes[:maxFieldLen]))
	}
	return s
}

// SanitizeNick sanitizes a nickname, substituting "anon" when nothing
// usable remains.
func SanitizeNick(s string) string {
	if nick := Sanitize(s); nick != "" {
		return nick
	}
	return anonNick
}
