// Package services holds the retrieval, prompting and generation logic that
// sits between the HTTP layer and the infrastructure clients.
package services

import (
	"fmt"
	"strings"

	"github.com/paperchat-ai/paperchat/internal/core"
)

// systemInstructions is intentionally context-free so backends can cache it;
// document context travels in the user message instead.
const systemInstructions = "You are a helpful AI assistant that answers questions about PDF documents. " +
	"Always cite page numbers when referencing information from the document. " +
	"Answer based ONLY on the provided context."

const noContextGuidance = `No document context is available right now. This might be because the document is still being processed or its embeddings have not been generated yet. Let the user know and suggest waiting a moment for processing to finish, or re-uploading the document.`

// historyLimit caps how many prior messages travel with each generation.
const historyLimit = 10

// titleQueryLimit caps how much of the first user message feeds title
// generation.
const titleQueryLimit = 500

// BuildSystemPrompt returns the fixed generation instructions.
func BuildSystemPrompt() string {
	return systemInstructions
}

// BuildUserPromptWithContext wraps the user's question with the retrieved
// document context, one [Page N] block per chunk. With no chunks it carries
// guidance explaining the missing context instead.
func BuildUserPromptWithContext(userMessage string, chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return fmt.Sprintf("%s\n\nQuestion: %s", noContextGuidance, userMessage)
	}

	blocks := make([]string, len(chunks))
	for i, ch := range chunks {
		blocks[i] = fmt.Sprintf("[Page %d]\n%s", ch.Page, ch.Text)
	}
	context := strings.Join(blocks, "\n\n")

	return fmt.Sprintf(`Here is the relevant context from a PDF document:

%s

Based ONLY on the above context from the document, please answer the following question. Always cite page numbers when referencing information.

Question: %s`, context, userMessage)
}

// BuildTitleMessages builds the prompt for generating a thread title from the
// first user message, capped at 500 characters.
func BuildTitleMessages(userMessage string) []core.ChatMessage {
	if len(userMessage) > titleQueryLimit {
		userMessage = userMessage[:titleQueryLimit]
	}
	return []core.ChatMessage{
		{
			Role: "system",
			Content: "You are a helpful assistant that generates concise, descriptive titles. " +
				"Generate a title that is exactly 4 words or less. " +
				"Return only the title text, no quotes or punctuation.",
		},
		{
			Role: "user",
			Content: "Generate a concise title (maximum 4 words) for a conversation that starts with this message:\n\n" +
				userMessage,
		},
	}
}

// CleanTitle normalizes a model-generated title to at most 4 words with
// surrounding quotes and punctuation stripped. Empty input falls back to
// "New Chat".
func CleanTitle(raw string) string {
	words := strings.Fields(strings.TrimSpace(raw))
	if len(words) > 4 {
		words = words[:4]
	}
	title := strings.Trim(strings.Join(words, " "), "\"'.,!?")
	if title == "" {
		return "New Chat"
	}
	return title
}
