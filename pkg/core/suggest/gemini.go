package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/deckroom/deckroom/pkg/core"
)

const defaultSuggestionModel = "gemini-2.0-flash"

// GeminiGenerator asks Gemini for suggestion batches in a strict JSON shape.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGemini builds a generator on the shared Gemini client.
func NewGemini(client *genai.Client, model string) *GeminiGenerator {
	if model == "" {
		model = defaultSuggestionModel
	}
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	count := req.Count
	if count <= 0 {
		count = 3
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, `You are assisting an investor during a live meeting with a founder.
Propose the %d to 5 most valuable questions the investor should ask next.

Rules:
- Ground questions in the deck context and what was just said.
- Do not repeat or rephrase questions already on screen.
- Respond with JSON only, shaped exactly as:
  {"questions": ["..."], "context": "one sentence on why these", "topics": ["..."]}

`, count)
	prompt.WriteString("# Deck context\n")
	prompt.WriteString(req.KBContext)
	prompt.WriteString("\n\n# Recent conversation\n")
	if req.RecentTranscript != "" {
		prompt.WriteString(req.RecentTranscript)
	} else {
		prompt.WriteString("(the meeting has just started)")
	}
	prompt.WriteString("\n\n# Questions already on screen\n")
	if len(req.ExistingQuestions) == 0 {
		prompt.WriteString("(none)")
	}
	for _, q := range req.ExistingQuestions {
		prompt.WriteString("- " + q + "\n")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt.String()),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return nil, core.NewProviderError("gemini", fmt.Errorf("generate suggestions: %w", err))
	}

	var out Result
	if err := json.Unmarshal([]byte(stripFences(resp.Text())), &out); err != nil {
		return nil, fmt.Errorf("decode suggestion response: %w", err)
	}
	return &out, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite the MIME type hint.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
