package util

import (
	"html"
	"strings"
)

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// TruncateSecret keeps the first n characters of a secret and masks the rest,
// so descriptions and log lines never carry a usable token.
func TruncateSecret(secret string, n int) string {
	if len(secret) <= n {
		return secret
	}
	return secret[:n] + "..."
}
