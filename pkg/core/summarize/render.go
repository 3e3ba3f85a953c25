package summarize

import (
	"fmt"
	"strings"
)

// Meeting is the factual frame around a summary: what the finalization
// pipeline measured, independent of anything the model says.
type Meeting struct {
	Title             string
	DurationSeconds   float64
	Participants      []string
	DetectedLanguages []string
	WordCount         int
}

// Render produces the fixed-layout plain-text form of a summary. The layout
// is stable so stored summaries stay comparable across sessions.
func Render(m Meeting, s *Summary) string {
	var b strings.Builder

	b.WriteString("# Meeting Summary")
	if m.Title != "" {
		b.WriteString(": " + m.Title)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(m.DurationSeconds))
	if len(m.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(m.Participants, ", "))
	}
	if len(m.DetectedLanguages) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(m.DetectedLanguages, ", "))
	}

	section(&b, "Executive Summary", []string{s.ExecutiveSummary})
	section(&b, "Key Topics", s.KeyTopics)
	section(&b, "Important Points", s.ImportantPoints)
	section(&b, "Questions Asked", s.QuestionsAsked)
	section(&b, "Concerns / Red Flags", s.ConcernsOrRedFlags)
	section(&b, "Next Steps", s.NextSteps)
	section(&b, "Overall Assessment", []string{s.OverallAssessment})

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, title string, items []string) {
	var kept []string
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return
	}
	b.WriteString("\n## " + title + "\n")
	if len(kept) == 1 {
		b.WriteString(kept[0] + "\n")
		return
	}
	for _, it := range kept {
		b.WriteString("- " + it + "\n")
	}
}

// Fallback renders a deterministic summary for when generation or parsing
// fails. It records only measured facts plus a notice.
func Fallback(m Meeting) string {
	var b strings.Builder
	b.WriteString("# Meeting Summary")
	if m.Title != "" {
		b.WriteString(": " + m.Title)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(m.DurationSeconds))
	if len(m.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(m.Participants, ", "))
	}
	fmt.Fprintf(&b, "Transcript length: %d words\n", m.WordCount)
	b.WriteString("\nAI summary generation failed; the full transcript is available.\n")
	return b.String()
}

func formatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	mins := total / 60
	secs := total % 60
	return fmt.Sprintf("%dm %02ds", mins, secs)
}
