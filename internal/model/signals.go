package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// ExtractedSignals is the structured output of one extractor call, and also
// the accumulated per-session view after merging. Scalar fields use
// "unknown"/"none" as the absent value; set fields only ever grow.
type ExtractedSignals struct {
	Intent             Intent            `json:"intent"`
	Sentiment          Sentiment         `json:"sentiment"`
	Urgency            Urgency           `json:"urgency"`
	BudgetSignal       BudgetSignal      `json:"budgetSignal"`
	PainPoints         []string          `json:"painPoints"`
	CompetitorMentions []string          `json:"competitorMentions"`
	RecommendedAction  RecommendedAction `json:"recommendedAction"`
}

// EmptySignals returns the zero accumulated view for a fresh session.
func EmptySignals() ExtractedSignals {
	return ExtractedSignals{
		Intent:            IntentUnknown,
		Sentiment:         SentimentNeutral,
		Urgency:           UrgencyLow,
		BudgetSignal:      BudgetNone,
		RecommendedAction: ActionNone,
	}
}

// Merge folds a newer extraction into the accumulated view.
// Scalar fields: a later non-absent value overrides; absent values never
// erase earlier knowledge. Set fields: union, de-duplicated and sorted so
// the merged view is independent of arrival order within a turn.
func (s ExtractedSignals) Merge(newer ExtractedSignals) ExtractedSignals {
	merged := s

	if newer.Intent != IntentUnknown && newer.Intent != "" {
		merged.Intent = newer.Intent
	}
	if newer.Sentiment != "" {
		merged.Sentiment = newer.Sentiment
	}
	if newer.Urgency != "" {
		merged.Urgency = newer.Urgency
	}
	if newer.BudgetSignal != BudgetNone && newer.BudgetSignal != "" {
		merged.BudgetSignal = newer.BudgetSignal
	}
	if newer.RecommendedAction != ActionNone && newer.RecommendedAction != "" {
		merged.RecommendedAction = newer.RecommendedAction
	}

	merged.PainPoints = unionStrings(s.PainPoints, newer.PainPoints)
	merged.CompetitorMentions = unionStrings(s.CompetitorMentions, newer.CompetitorMentions)

	return merged
}

// Normalize fills zero-valued scalar fields with their absent markers.
// Extractor responses that omit a field decode to "", which must not be
// stored as a distinct state.
func (s ExtractedSignals) Normalize() ExtractedSignals {
	if s.Intent == "" {
		s.Intent = IntentUnknown
	}
	if s.Sentiment == "" {
		s.Sentiment = SentimentNeutral
	}
	if s.Urgency == "" {
		s.Urgency = UrgencyLow
	}
	if s.BudgetSignal == "" {
		s.BudgetSignal = BudgetNone
	}
	if s.RecommendedAction == "" {
		s.RecommendedAction = ActionNone
	}
	return s
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Value implements driver.Valuer so signals persist as a JSONB column.
func (s ExtractedSignals) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *ExtractedSignals) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = EmptySignals()
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into ExtractedSignals", src)
	}
}
