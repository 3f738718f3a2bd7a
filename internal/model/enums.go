package model

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusTimedOut  SessionStatus = "timed_out"
	SessionStatusQualified SessionStatus = "qualified"
	SessionStatusSynced    SessionStatus = "synced"
)

type ConversationStage string

const (
	StageGreeting      ConversationStage = "greeting"
	StageDiscovery     ConversationStage = "discovery"
	StageQualification ConversationStage = "qualification"
	StageAction        ConversationStage = "action"
)

type Speaker string

const (
	SpeakerVisitor Speaker = "visitor"
	SpeakerAgent   Speaker = "agent"
)

type Intent string

const (
	IntentBuying   Intent = "buying"
	IntentSupport  Intent = "support"
	IntentBrowsing Intent = "browsing"
	IntentUnknown  Intent = "unknown"
)

type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentFrustrated Sentiment = "frustrated"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

type BudgetSignal string

const (
	BudgetHigh BudgetSignal = "high"
	BudgetLow  BudgetSignal = "low"
	BudgetNone BudgetSignal = "none"
)

type RecommendedAction string

const (
	ActionScheduleDemo  RecommendedAction = "schedule_demo"
	ActionOfferDiscount RecommendedAction = "offer_discount"
	ActionEscalate      RecommendedAction = "escalate"
	ActionNurture       RecommendedAction = "nurture"
	ActionNone          RecommendedAction = "none"
)

type ScoreCategory string

const (
	CategoryHot  ScoreCategory = "hot"
	CategoryWarm ScoreCategory = "warm"
	CategoryCold ScoreCategory = "cold"
)

// Qualifying reports whether the category triggers CRM synchronization.
func (c ScoreCategory) Qualifying() bool {
	return c == CategoryHot || c == CategoryWarm
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// NextStage returns the stage one step after s. The action stage is terminal.
func (s ConversationStage) NextStage() ConversationStage {
	switch s {
	case StageGreeting:
		return StageDiscovery
	case StageDiscovery:
		return StageQualification
	case StageQualification:
		return StageAction
	default:
		return s
	}
}
