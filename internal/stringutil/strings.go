// Package stringutil provides common string manipulation utilities.
package stringutil

import "strings"

// IsNumeric checks if a string contains only digits.
// Returns false for empty strings.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ContainsAllRunes checks if s contains all runes from chars
// (case-insensitive for ASCII). Occurrences count: "aa" requires at
// least 2 'a's in s. Matching is non-contiguous, so "積電" matches
// "台積電" and "電積" does too.
func ContainsAllRunes(s, chars string) bool {
	if chars == "" {
		return true
	}
	if s == "" {
		return false
	}

	sLower := strings.ToLower(s)
	charsLower := strings.ToLower(chars)

	runeCount := make(map[rune]int)
	for _, r := range sLower {
		runeCount[r]++
	}

	requiredCount := make(map[rune]int)
	for _, r := range charsLower {
		requiredCount[r]++
	}

	for r, required := range requiredCount {
		if runeCount[r] < required {
			return false
		}
	}
	return true
}
