package validation

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// stripPolicy allows zero tags and zero attributes: all markup and
	// script content is removed.
	stripPolicy = bluemonday.StrictPolicy()

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Sanitize normalizes raw string input before schema validation:
// surrounding whitespace is trimmed, markup is stripped, control
// characters are removed, and whitespace runs collapse to a single
// space. The steps run in that order.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)

	// bluemonday entity-escapes the surviving text; unescape to get the
	// plain-text form back.
	s = html.UnescapeString(stripPolicy.Sanitize(s))

	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)

	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
