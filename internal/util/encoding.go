package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeEmail lowercases and NFKD-normalizes an email address so that
// visually identical addresses map to the same account key.
func NormalizeEmail(email string) string {
	return Normalize(strings.ToLower(strings.TrimSpace(email)))
}
