package prompt

import (
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Truncate returns the longest prefix of s holding at most maxChars runes that
// ends on a grapheme cluster boundary. A cluster that would straddle the limit
// is dropped whole.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	count, end := 0, 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n := len(gr.Runes())
		if count+n > maxChars {
			break
		}
		count += n
		_, end = gr.Positions()
	}
	return s[:end]
}
