package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeSpace(s string) string {
	s = strings.Trim(s, " \n\t")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return s
}

func ContainsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// KeywordWindow scans text for the first occurrence of any keyword and
// returns a window of at most `width` characters starting there, with a
// trailing ellipsis when truncated. This is a best-effort signal for
// prose that has no dedicated field, not a precise extraction.
func KeywordWindow(text string, keywords []string, width int) string {
	lower := strings.ToLower(text)
	start := -1
	for _, k := range keywords {
		idx := strings.Index(lower, strings.ToLower(k))
		if idx < 0 {
			continue
		}
		if start < 0 || idx < start {
			start = idx
		}
	}
	if start < 0 {
		return ""
	}

	end := start + width
	if end >= len(text) {
		return text[start:]
	}
	return text[start:end] + "..."
}
