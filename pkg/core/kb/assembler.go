// Package kb assembles the knowledge-base context string handed to the
// question generator and summarizer. The assembler is a pure formatter:
// identical inputs always produce identical output.
package kb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deckroom/deckroom/pkg/store"
)

// Input carries everything the assembler formats. Any field except Deck may
// be zero; absent sections render an explicit "Not available" marker so the
// generator knows the gap is real.
type Input struct {
	Deck           *store.Deck
	Thesis         *store.Thesis
	Messages       []store.Message
	SupportingDocs []store.SupportingDocument
	DataRoomDocs   []store.DataRoomDocument
}

// Assemble renders the formatted context. Sections appear in a fixed order:
// deck, analysis, thesis, prior conversation, supporting documents, data
// room.
func Assemble(in Input) string {
	var b strings.Builder

	b.WriteString("## Deck\n")
	if in.Deck != nil {
		fmt.Fprintf(&b, "Title: %s\n", in.Deck.Title)
		if in.Deck.Status != "" {
			fmt.Fprintf(&b, "Status: %s\n", in.Deck.Status)
		}
		if in.Deck.AnalysisVersion > 0 {
			fmt.Fprintf(&b, "Analysis version: %d\n", in.Deck.AnalysisVersion)
		}
	} else {
		b.WriteString("Not available\n")
	}

	b.WriteString("\n## Deck analysis\n")
	if in.Deck != nil && len(in.Deck.Analysis) > 0 {
		b.WriteString(renderJSON(in.Deck.Analysis))
		b.WriteString("\n")
	} else {
		b.WriteString("Not available\n")
	}

	b.WriteString("\n## Investment thesis\n")
	b.WriteString(renderThesis(in.Thesis))

	b.WriteString("\n## Prior conversation\n")
	if len(in.Messages) == 0 {
		b.WriteString("Not available\n")
	}
	for _, msg := range in.Messages {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", flatten(msg.UserQuery), flatten(msg.AIResponse))
	}

	b.WriteString("\n## Supporting documents\n")
	if len(in.SupportingDocs) == 0 {
		b.WriteString("Not available\n")
	}
	for _, doc := range in.SupportingDocs {
		if doc.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", doc.Title, flatten(doc.Description))
		} else {
			fmt.Fprintf(&b, "- %s\n", doc.Title)
		}
	}

	b.WriteString("\n## Data room\n")
	if len(in.DataRoomDocs) == 0 {
		b.WriteString("Not available\n")
	}
	for _, doc := range in.DataRoomDocs {
		line := doc.Title
		if doc.Category != "" {
			line += " [" + doc.Category + "]"
		}
		if doc.AISummary != "" {
			line += ": " + flatten(doc.AISummary)
		}
		fmt.Fprintf(&b, "- %s\n", line)
	}

	return b.String()
}

func renderThesis(thesis *store.Thesis) string {
	if thesis == nil {
		return "Not available\n"
	}
	var b strings.Builder
	if thesis.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", thesis.Name)
	}
	switch thesis.Content.Kind {
	case store.ThesisStructured:
		if len(thesis.Content.Structured) > 0 {
			b.WriteString(renderJSON(thesis.Content.Structured))
			b.WriteString("\n")
			return b.String()
		}
	case store.ThesisRawText:
		if thesis.Content.RawText != "" {
			b.WriteString(thesis.Content.RawText)
			b.WriteString("\n")
			return b.String()
		}
	}
	b.WriteString("Not available\n")
	return b.String()
}

// renderJSON pretty-prints a raw JSON document with stable indentation.
// Invalid JSON is passed through as-is rather than dropped.
func renderJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
