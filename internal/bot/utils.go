package bot

import (
	"regexp"
	"slices"
	"strings"
)

// PostbackSplitChar is the delimiter separating fields in postback data.
// Example: "mops:range$2330$114/08/01$114/08/31".
const PostbackSplitChar = "$"

// BuildKeywordRegex creates a regex matching keywords at the START of
// text. Keywords are sorted longest first to prevent partial matches,
// and must be followed by a space or end of text so "公告欄" never
// triggers "公告". Panics if keywords is empty.
func BuildKeywordRegex(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		panic("BuildKeywordRegex: keywords cannot be empty")
	}

	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	slices.SortFunc(sorted, func(a, b string) int {
		return len(b) - len(a)
	})

	pattern := "(?i)^(" + strings.Join(sorted, "|") + ")(?:\\s|$)"
	return regexp.MustCompile(pattern)
}

// MatchKeyword returns the matched keyword from text, without trailing
// space, or empty string if no match.
func MatchKeyword(regex *regexp.Regexp, text string) string {
	match := regex.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ExtractSearchTerm removes the matched keyword and returns the
// remaining trimmed text.
func ExtractSearchTerm(text, keyword string) string {
	if keyword == "" {
		return strings.TrimSpace(text)
	}
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, keyword):
		return strings.TrimSpace(strings.TrimPrefix(text, keyword))
	case strings.HasSuffix(text, keyword):
		return strings.TrimSpace(strings.TrimSuffix(text, keyword))
	default:
		return strings.TrimSpace(strings.Replace(text, keyword, "", 1))
	}
}

// normalizeWhitespace collapses all whitespace runs to single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeText strips control and decoration characters while keeping
// everything commands need. Slashes, colons, tildes and dashes survive
// because dates ("114/08/01"), times and ranges ("~") are arguments.
func sanitizeText(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == ' ', r == '/', r == ':', r == '~', r == '-', r == '.',
			r >= 0x4E00 && r <= 0x9FFF,
			r >= 0x3400 && r <= 0x4DBF:
			result.WriteRune(r)
		case r == 0x3000: // fullwidth space
			result.WriteRune(' ')
		default:
		}
	}
	return normalizeWhitespace(result.String())
}
