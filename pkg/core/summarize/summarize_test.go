package summarize

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSummaryUnmarshalPreservesExtras(t *testing.T) {
	raw := `{
		"executiveSummary": "Strong team, early traction.",
		"keyTopics": ["traction", "hiring"],
		"importantPoints": ["ARR doubled in six months"],
		"questionsAsked": ["What is the burn rate?"],
		"concernsOrRedFlags": [],
		"nextSteps": ["Schedule follow-up"],
		"overallAssessment": "Promising.",
		"sentiment": "positive",
		"confidence": 0.8
	}`
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.ExecutiveSummary != "Strong team, early traction." {
		t.Fatalf("executiveSummary = %q", s.ExecutiveSummary)
	}
	if len(s.KeyTopics) != 2 {
		t.Fatalf("keyTopics = %v", s.KeyTopics)
	}
	if len(s.Extras) != 2 {
		t.Fatalf("extras = %v, want sentiment and confidence", s.Extras)
	}
	if string(s.Extras["sentiment"]) != `"positive"` {
		t.Fatalf("sentiment extra = %s", s.Extras["sentiment"])
	}
}

func TestRenderFixedLayout(t *testing.T) {
	m := Meeting{
		Title:             "Acme pitch",
		DurationSeconds:   754,
		Participants:      []string{"Speaker 0", "Jane"},
		DetectedLanguages: []string{"en"},
	}
	s := &Summary{
		ExecutiveSummary:  "Solid pitch.",
		KeyTopics:         []string{"market", "team"},
		ImportantPoints:   []string{"LOIs from two enterprise customers"},
		QuestionsAsked:    []string{"How big is the pipeline?"},
		NextSteps:         []string{"Send data room access"},
		OverallAssessment: "Worth a second meeting.",
	}

	out := Render(m, s)
	for _, want := range []string{
		"# Meeting Summary: Acme pitch",
		"Duration: 12m 34s",
		"Participants: Speaker 0, Jane",
		"Languages: en",
		"## Executive Summary\nSolid pitch.",
		"## Key Topics\n- market\n- team",
		"## Overall Assessment\nWorth a second meeting.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendering missing %q\n%s", want, out)
		}
	}
	// Empty sections are omitted entirely.
	if strings.Contains(out, "Concerns") {
		t.Errorf("empty section should be omitted:\n%s", out)
	}

	if again := Render(m, s); again != out {
		t.Fatalf("render not deterministic")
	}
}

func TestFallback(t *testing.T) {
	out := Fallback(Meeting{
		Title:           "Acme pitch",
		DurationSeconds: 61,
		Participants:    []string{"Speaker 0"},
		WordCount:       420,
	})
	for _, want := range []string{
		"Duration: 1m 01s",
		"Participants: Speaker 0",
		"Transcript length: 420 words",
		"AI summary generation failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("fallback missing %q\n%s", want, out)
		}
	}
}
