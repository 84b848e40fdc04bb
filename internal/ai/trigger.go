package ai

import (
	"regexp"
	"strings"
)

// A message addresses the assistant when its trimmed content starts with
// @ai or @gemini followed by whitespace, case-insensitive.
var triggerPattern = regexp.MustCompile(`(?i)^@(ai|gemini)\s+`)

// ExtractQuery reports whether content addresses the assistant and, if so,
// returns the query text that follows the mention.
func ExtractQuery(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	loc := triggerPattern.FindStringIndex(trimmed)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(trimmed[loc[1]:]), true
}
