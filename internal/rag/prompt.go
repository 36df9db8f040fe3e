package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

// maxPromptDocs caps how many documents a single prompt includes.
const maxPromptDocs = 10

// PromptBuilder assembles LLM prompts from a query and retrieved context.
type PromptBuilder struct {
	systemPreamble string
}

// NewPromptBuilder creates a builder with the default analysis preamble.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		systemPreamble: "You are an infrastructure analyst. Answer concisely using only the provided context. If the context is insufficient, say so.",
	}
}

// Build renders the full analysis prompt.
func (b *PromptBuilder) Build(query string, w timewindow.Window, docs []models.Document) string {
	var sb strings.Builder
	sb.WriteString(b.systemPreamble)
	sb.WriteString("\n\nTime range: ")
	sb.WriteString(w.HumanReadable())
	sb.WriteString("\n\nContext:\n")

	if len(docs) == 0 {
		sb.WriteString("(no relevant documents found)\n")
	}
	for i, doc := range docs {
		if i == maxPromptDocs {
			break
		}
		fmt.Fprintf(&sb, "[%d] (relevance %.2f) %s\n", i+1, doc.Relevance, doc.Content)
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

// BuildFallback renders a shorter prompt used when the full prompt fails,
// keeping only the highest relevance documents.
func (b *PromptBuilder) BuildFallback(query string, docs []models.Document) string {
	var sb strings.Builder
	sb.WriteString("Answer briefly: ")
	sb.WriteString(query)

	if len(docs) > 0 {
		sb.WriteString("\nKey context: ")
		max := 3
		if len(docs) < max {
			max = len(docs)
		}
		for i := 0; i < max; i++ {
			if i > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(truncate(docs[i].Content, 200))
		}
	}
	return sb.String()
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
