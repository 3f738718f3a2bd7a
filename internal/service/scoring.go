package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/leadwise/intel-server-go/internal/config"
	"github.com/leadwise/intel-server-go/internal/model"
)

// LeadScore is derived, never stored independently of the session.
type LeadScore struct {
	Value      int                 `json:"value"`
	Category   model.ScoreCategory `json:"category"`
	Priority   model.Priority      `json:"priority"`
	ComputedAt time.Time           `json:"computedAt"`
}

// ComputeScore is a pure function of the accumulated signal set plus the
// visit count. It is total, not incremental: recomputed in full on every
// merge so the result never depends on merge order.
func ComputeScore(signals model.ExtractedSignals, visitCount int) LeadScore {
	score := 0

	switch signals.Intent {
	case model.IntentBuying:
		score += config.ScoreIntentBuying
	case model.IntentSupport:
		score += config.ScoreIntentSupport
	}

	switch signals.Urgency {
	case model.UrgencyHigh:
		score += config.ScoreUrgencyHigh
	case model.UrgencyMedium:
		score += config.ScoreUrgencyMedium
	}

	switch signals.BudgetSignal {
	case model.BudgetHigh:
		score += config.ScoreBudgetHigh
	case model.BudgetLow:
		score += config.ScoreBudgetLow
	}

	score += capped(len(signals.PainPoints)*config.ScorePerPainPoint, config.ScorePainPointCap)

	// Competitor interest signals active evaluation, not negative sentiment.
	score += capped(len(signals.CompetitorMentions)*config.ScorePerCompetitor, config.ScoreCompetitorCap)

	// Frustration plus buying intent signals urgency, not disqualification.
	if signals.Sentiment == model.SentimentFrustrated && signals.Intent != model.IntentBuying {
		score -= config.ScoreFrustrationPenalty
	}

	if visitCount > 1 {
		score += capped((visitCount-1)*config.ScorePerExtraVisit, config.ScoreVisitBonusCap)
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return LeadScore{
		Value:      score,
		Category:   categorize(score),
		Priority:   prioritize(score, signals),
		ComputedAt: time.Now(),
	}
}

func categorize(score int) model.ScoreCategory {
	switch {
	case score >= config.HotThreshold:
		return model.CategoryHot
	case score >= config.WarmThreshold:
		return model.CategoryWarm
	default:
		return model.CategoryCold
	}
}

func prioritize(score int, signals model.ExtractedSignals) model.Priority {
	// Frustrated visitors always get high follow-up priority.
	if signals.Sentiment == model.SentimentFrustrated {
		return model.PriorityHigh
	}
	switch categorize(score) {
	case model.CategoryHot:
		return model.PriorityHigh
	case model.CategoryWarm:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

// Summarize renders the one-line lead summary shown to sales agents and
// carried into the CRM description.
func Summarize(score LeadScore, signals model.ExtractedSignals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s lead (%d/100), intent: %s, sentiment: %s, urgency: %s, budget: %s",
		strings.ToUpper(string(score.Category)), score.Value,
		signals.Intent, signals.Sentiment, signals.Urgency, signals.BudgetSignal)
	if len(signals.PainPoints) > 0 {
		fmt.Fprintf(&b, ", pain points: %s", strings.Join(signals.PainPoints, "; "))
	}
	if signals.RecommendedAction != model.ActionNone {
		fmt.Fprintf(&b, ", next action: %s", signals.RecommendedAction)
	}
	return b.String()
}

var battleCards = map[string]string{
	"hubspot":    "VS HubSpot: 40% cheaper with equivalent features. Superior AI-powered lead scoring. No feature gates on lower tiers.",
	"salesforce": "VS Salesforce: 60% faster implementation. No complex admin training required. Transparent pricing, no hidden costs.",
	"intercom":   "VS Intercom: Better AI context retention. Seamless CRM integration. 24/7 support included in all plans.",
	"drift":      "VS Drift: More affordable for SMBs. Advanced analytics included. Better customization options.",
	"zendesk":    "VS Zendesk: Purpose-built for sales, not just support. Integrated intelligence engine. Better conversion rates.",
}

// BattleCard returns the competitive note for the first recognized
// competitor mention, or nil when none applies.
func BattleCard(signals model.ExtractedSignals) *string {
	for _, competitor := range signals.CompetitorMentions {
		if card, ok := battleCards[strings.ToLower(competitor)]; ok {
			return &card
		}
	}
	if len(signals.CompetitorMentions) > 0 {
		card := fmt.Sprintf("VS %s: contact the sales team for a detailed competitive comparison.", signals.CompetitorMentions[0])
		return &card
	}
	return nil
}
