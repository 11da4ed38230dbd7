package validators

import "strings"

// SanitizeString trims input and truncates it to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	count := 0
	for i := range trimmed {
		if count == maxLen {
			return trimmed[:i]
		}
		count++
	}
	return trimmed
}
