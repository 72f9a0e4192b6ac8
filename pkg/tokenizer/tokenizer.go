package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CountTokens returns a rough token estimate: the larger of a word-based
// guess (~4/3 tokens per word) and a character-based one (~4 chars per
// token). Han, Hiragana and Katakana runes count as one token each.
func CountTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	words := len(strings.Fields(text))
	byWords := (words*4 + 2) / 3

	wide := 0
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			wide++
		}
	}
	narrow := utf8.RuneCountInString(text) - wide
	byChars := wide + (narrow+3)/4

	return max(byWords, byChars, 1)
}

// CountMessages sums the estimate over several strings plus a small
// per-message framing overhead.
func CountMessages(parts ...string) int {
	total := 0
	for _, p := range parts {
		total += CountTokens(p) + 4
	}
	return total
}
