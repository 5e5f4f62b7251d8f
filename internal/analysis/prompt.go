// Package analysis holds what every analysis provider shares: the prompt,
// the lenient result parser and the model fallback rules.
package analysis

import "strings"

// Temperature keeps the summary close to the transcript.
const Temperature = 0.2

// Instructions is the system part of the analysis prompt.
const Instructions = `You are a helpful assistant. From the user's transcript, produce two things:
1) highlights: a summary roughly 20%-30% of the length of the original text;
2) todos: a hierarchical to-do list. Every item has an id and a title, an optional priority (low, medium or high), an optional category and optional children. Use at most three levels.

Respond ONLY with strict JSON (no markdown, no backticks):
{"highlights": "string", "todos": [{"id": "1", "title": "string", "priority": "high", "category": "string", "children": []}]}`

// BuildPrompt returns the single user message sent to chat-style models.
func BuildPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString(Instructions)
	b.WriteString("\n\nTranscript:\n\n")
	b.WriteString(transcript)
	return b.String()
}
