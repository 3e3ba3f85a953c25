package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/deckroom/deckroom/pkg/core"
)

const defaultSummaryModel = "gemini-2.0-flash"

// Generator produces structured summaries from a rendered transcript.
type Generator interface {
	Summarize(ctx context.Context, m Meeting, transcript string) (*Summary, error)
}

// GeminiGenerator asks Gemini for the fixed summary shape.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGemini(client *genai.Client, model string) *GeminiGenerator {
	if model == "" {
		model = defaultSummaryModel
	}
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) Summarize(ctx context.Context, m Meeting, transcript string) (*Summary, error) {
	var prompt strings.Builder
	prompt.WriteString(`Summarize this investor-founder meeting transcript.
Speaker labels are machine-attributed; if a speaker introduces themselves by
name in the transcript, use that name. Respond with JSON only, shaped exactly
as:
{"executiveSummary": "...", "keyTopics": ["..."], "importantPoints": ["..."],
 "questionsAsked": ["..."], "concernsOrRedFlags": ["..."], "nextSteps": ["..."],
 "overallAssessment": "..."}

`)
	fmt.Fprintf(&prompt, "Duration: %s\n", formatDuration(m.DurationSeconds))
	if len(m.Participants) > 0 {
		fmt.Fprintf(&prompt, "Participants: %s\n", strings.Join(m.Participants, ", "))
	}
	if len(m.DetectedLanguages) > 0 {
		fmt.Fprintf(&prompt, "Languages: %s\n", strings.Join(m.DetectedLanguages, ", "))
	}
	prompt.WriteString("\n# Transcript\n")
	prompt.WriteString(transcript)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt.String()),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return nil, core.NewProviderError("gemini", fmt.Errorf("generate summary: %w", err))
	}

	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var out Summary
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode summary response: %w", err)
	}
	return &out, nil
}
