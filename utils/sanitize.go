package utils

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// Media captions are rendered as plain text by several front-ends; none of them expect markup.
var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips all HTML tags from input. The policy output is unescaped again
// so plain text such as "Tom & Jerry" comes back unchanged.
func Sanitize(input string) string {
	return html.UnescapeString(sanitizer.Sanitize(input))
}

// SanitizePtr sanitizes an optional field, keeping nil as nil.
func SanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	clean := Sanitize(*s)
	return &clean
}
