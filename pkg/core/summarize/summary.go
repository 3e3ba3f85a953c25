// Package summarize turns a finalized meeting transcript into a structured
// summary and a fixed-layout text rendering of it.
package summarize

import "encoding/json"

// Summary is the fixed shape requested from the model. Fields the model
// returns beyond these are preserved in Extras rather than dropped.
type Summary struct {
	ExecutiveSummary   string   `json:"executiveSummary"`
	KeyTopics          []string `json:"keyTopics"`
	ImportantPoints    []string `json:"importantPoints"`
	QuestionsAsked     []string `json:"questionsAsked"`
	ConcernsOrRedFlags []string `json:"concernsOrRedFlags"`
	NextSteps          []string `json:"nextSteps"`
	OverallAssessment  string   `json:"overallAssessment"`

	Extras map[string]json.RawMessage `json:"-"`
}

var knownSummaryKeys = map[string]struct{}{
	"executiveSummary":   {},
	"keyTopics":          {},
	"importantPoints":    {},
	"questionsAsked":     {},
	"concernsOrRedFlags": {},
	"nextSteps":          {},
	"overallAssessment":  {},
}

// UnmarshalJSON decodes the fixed fields and collects unknown keys into
// Extras.
func (s *Summary) UnmarshalJSON(data []byte) error {
	type plain Summary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Summary(p)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key, raw := range all {
		if _, known := knownSummaryKeys[key]; known {
			continue
		}
		if s.Extras == nil {
			s.Extras = make(map[string]json.RawMessage)
		}
		s.Extras[key] = raw
	}
	return nil
}
