package suggest

import "context"

// Request is one generation invocation: the assembled knowledge-base
// context, the recent final-transcript window, and the questions already on
// screen (so the model avoids repeating them).
type Request struct {
	KBContext         string
	RecentTranscript  string
	ExistingQuestions []string
	// Count hints how many questions to ask for; 0 means the default 3-5.
	Count int
}

// Result is the strict shape the generator must return.
type Result struct {
	Questions []string `json:"questions"`
	Context   string   `json:"context"`
	Topics    []string `json:"topics"`
}

// Generator produces suggestion batches. Implementations must be safe for
// concurrent use across sessions.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
