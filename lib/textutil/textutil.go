package textutil

import "strings"

// NormalizeKeyword lowercases and trims a keyword. Inner whitespace is kept as is so it
// matches the page text byte for byte.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// MissingKeyword returns the first keyword (in order) that does not occur in `text`,
// matching is case-insensitive and blank keywords are ignored. ok is false when every
// keyword occurs.
func MissingKeyword(text string, keywords []string) (keyword string, ok bool) {
	if len(keywords) == 0 {
		return "", false
	}
	lowered := strings.ToLower(text)
	for _, k := range keywords {
		normalized := NormalizeKeyword(k)
		if normalized == "" {
			continue
		}
		if !strings.Contains(lowered, normalized) {
			return strings.TrimSpace(k), true
		}
	}
	return "", false
}
