package prompt

import "strings"

// DefaultMaxPageContentChars caps the page content copied into a context block.
const DefaultMaxPageContentChars = 5000

// Assembler merges the selection and optional page details into a context block.
type Assembler struct {
	MaxPageContentChars int
}

func NewAssembler(maxPageContentChars int) *Assembler {
	if maxPageContentChars <= 0 {
		maxPageContentChars = DefaultMaxPageContentChars
	}
	return &Assembler{MaxPageContentChars: maxPageContentChars}
}

// BuildContext always quotes the selected text, then adds the page URL and the
// truncated page content when they are non-empty. Each section ends with a
// blank line and sections keep this order whatever is present.
func (a *Assembler) BuildContext(selectedText, pageURL, pageContent string) string {
	var b strings.Builder

	b.WriteString(`Selected Text: "`)
	b.WriteString(selectedText)
	b.WriteString("\"\n\n")

	if pageURL != "" {
		b.WriteString("Page URL: ")
		b.WriteString(pageURL)
		b.WriteString("\n\n")
	}

	if pageContent != "" {
		b.WriteString("Page Context: ")
		b.WriteString(Truncate(pageContent, a.MaxPageContentChars))
		b.WriteString("\n\n")
	}

	return b.String()
}

// BuildContext assembles a context block with the default page content limit.
func BuildContext(selectedText, pageURL, pageContent string) string {
	return NewAssembler(DefaultMaxPageContentChars).BuildContext(selectedText, pageURL, pageContent)
}
