// Package slugutil provides the filename-slugification helper used by the
// artifact generator agent (§4.G).
package slugutil

import (
	"regexp"
	"strings"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	trimDash  = regexp.MustCompile(`^-+|-+$`)
)

// Slugify lowercases s, replaces runs of non-alphanumeric characters with a
// single hyphen, and trims leading/trailing hyphens. An empty or
// all-punctuation input slugifies to "untitled".
func Slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := nonAlnum.ReplaceAllString(lower, "-")
	slug = trimDash.ReplaceAllString(slug, "")
	if slug == "" {
		return "untitled"
	}
	return slug
}
