package helpers

import "unicode/utf8"

// DefaultTruncateLength is the number of characters of a collaborator
// response kept in result details.
const DefaultTruncateLength = 300

// DeepCopyMap is a generic function to copy a map with any key and value types.
func DeepCopyMap[K comparable, V any](original map[K]V) map[K]V {
	mapCopy := make(map[K]V, len(original))

	for key, value := range original {
		mapCopy[key] = value
	}

	return mapCopy
}

// Truncate cuts s to at most n runes and marks the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)

	return string(runes[:n]) + "..."
}
