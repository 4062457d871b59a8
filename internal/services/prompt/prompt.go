package prompt

import "strings"

const (
	preamble = "You are an AI assistant that helps users understand and analyze text they've selected from web pages."

	instructions = "Please provide a helpful, accurate, and concise answer based on the selected text and context provided. " +
		"If the selected text doesn't contain enough information to answer the question, say so clearly. " +
		"Keep your response focused and relevant to what the user is asking."

	// AnswerCue ends every prompt so the completion starts with the answer.
	AnswerCue = "Answer:"

	// CheckPrompt is sent by the provider key check.
	CheckPrompt = "Hello, this is a test. Please respond with 'API key is working!'"
)

// BuildPrompt wraps a context block and the question in the instruction
// template. The output depends on nothing but its arguments.
func BuildPrompt(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nUser Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(AnswerCue)
	return b.String()
}
