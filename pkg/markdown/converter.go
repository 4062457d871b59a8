package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// ToHTML renders a model answer to HTML for display in the popup. Raw HTML
// in the answer is dropped and links are limited to safe schemes.
func ToHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.SkipHTML | blackfriday.Safelink | blackfriday.NofollowLinks |
			blackfriday.NoreferrerLinks | blackfriday.HrefTargetBlank,
	})

	html := string(blackfriday.Run(
		[]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer),
	))

	html = extraNewlines.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
