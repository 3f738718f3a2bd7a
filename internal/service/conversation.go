package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/model"
	"github.com/leadwise/intel-server-go/internal/repository"
	"github.com/leadwise/intel-server-go/internal/util"
)

// SignalExtractor is the single request/response contract with the NLU
// collaborator.
type SignalExtractor interface {
	Extract(ctx context.Context, turns []model.ConversationTurn) (model.ExtractedSignals, error)
}

// SyncEnqueuer accepts a sync intent without blocking the conversation path.
type SyncEnqueuer interface {
	Enqueue(visitorID string)
}

// LeadNotifier publishes lead lifecycle events to the dashboard feed.
type LeadNotifier interface {
	LeadQualified(ctx context.Context, lead *model.Lead)
}

// TurnResult is what the inbound message path reports back to the widget.
type TurnResult struct {
	Session         *model.VisitorSession
	Signals         model.ExtractedSignals
	Score           LeadScore
	IsNewVisit      bool
	AnalysisSkipped bool
	NewlyQualified  bool
}

// ConversationService drives the multi-turn qualification dialogue. All
// per-session mutation is serialized through a per-visitor lock; sessions
// of distinct visitors never contend.
type ConversationService struct {
	sessions  *SessionService
	turnRepo  repository.TurnRepository
	leadRepo  repository.LeadRepository
	extractor SignalExtractor
	syncQueue SyncEnqueuer
	notifier  LeadNotifier
	locks     *visitorLocks
}

func NewConversationService(
	sessions *SessionService,
	turnRepo repository.TurnRepository,
	leadRepo repository.LeadRepository,
	extractor SignalExtractor,
	syncQueue SyncEnqueuer,
	notifier LeadNotifier,
) *ConversationService {
	return &ConversationService{
		sessions:  sessions,
		turnRepo:  turnRepo,
		leadRepo:  leadRepo,
		extractor: extractor,
		syncQueue: syncQueue,
		notifier:  notifier,
		locks:     newVisitorLocks(),
	}
}

// HandleTurn processes one inbound visitor message end to end: session
// find-or-create, turn append, signal extraction, merge, stage advance,
// score recompute, and - when the category first reaches a qualifying band -
// lead snapshot plus sync enqueue. Extractor failure records the turn but
// skips the analysis; only storage failures fail the request.
func (s *ConversationService) HandleTurn(ctx context.Context, visitorID, text string) (*TurnResult, error) {
	unlock := s.locks.Lock(visitorID)
	defer unlock()

	session, isNewVisit, err := s.sessions.GetOrCreate(ctx, visitorID)
	if err != nil {
		return nil, err
	}

	if !isNewVisit {
		if err := s.sessions.Touch(ctx, visitorID); err != nil {
			return nil, err
		}
	}

	turn, err := s.appendTurn(ctx, session.ID, text)
	if err != nil {
		return nil, err
	}

	turns, err := s.turnRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list turns: %w", err))
	}

	result := &TurnResult{IsNewVisit: isNewVisit}

	merged := session.Signals
	extracted, err := s.extractor.Extract(ctx, turns)
	switch {
	case err == nil:
		merged = session.Signals.Merge(extracted)
		result.Signals = extracted
	case apperrors.HasCode(err, apperrors.ErrCodeExtractionUnavailable):
		// Skip-turn semantics: the turn is recorded, signals stay as they
		// were, and the caller is told analysis did not run.
		result.AnalysisSkipped = true
		log.Warn().
			Str("visitorId", visitorID).
			Int("sequence", turn.SequenceNumber).
			Msg("extraction unavailable, turn recorded without analysis")
	default:
		return nil, err
	}

	stage := advanceStage(session.Stage, merged)
	score := ComputeScore(merged, session.VisitCount)
	result.Score = score

	status := session.Status
	wasQualifying := session.Status == model.SessionStatusQualified || session.Status == model.SessionStatusSynced
	if score.Category.Qualifying() && status == model.SessionStatusActive {
		status = model.SessionStatusQualified
	}

	updated, err := s.sessions.repo.UpdateAfterTurn(ctx, model.SessionUpdateParams{
		VisitorID: visitorID,
		Stage:     stage,
		Signals:   merged,
		Score:     score.Value,
		Category:  score.Category,
		Status:    status,
	})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("update session: %w", err))
	}
	result.Session = updated

	// Capture runs even on a skipped turn: the visit-count bonus can push
	// an unchanged signal set over the threshold, and a qualified session
	// must always have a lead snapshot and a sync intent behind it.
	if score.Category.Qualifying() {
		lead, err := s.captureLead(ctx, updated, score)
		if err != nil {
			// Lead capture failure must not abort the visitor-facing turn.
			log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to capture lead snapshot")
		} else {
			result.NewlyQualified = !wasQualifying
			if result.NewlyQualified && s.notifier != nil {
				s.notifier.LeadQualified(ctx, lead)
			}
		}
	}

	log.Info().
		Str("visitorId", visitorID).
		Str("stage", string(updated.Stage)).
		Int("score", score.Value).
		Str("category", string(score.Category)).
		Bool("analysisSkipped", result.AnalysisSkipped).
		Msg("turn handled")

	return result, nil
}

// appendTurn claims the next sequence number, retrying once when a
// concurrent turn won the race for it.
func (s *ConversationService) appendTurn(ctx context.Context, sessionID, text string) (*model.ConversationTurn, error) {
	for attempt := 0; attempt < 2; attempt++ {
		max, err := s.turnRepo.MaxSequence(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("max sequence: %w", err))
		}

		turn, err := s.turnRepo.Append(ctx, model.AppendTurnParams{
			ID:             util.NewID(),
			SessionID:      sessionID,
			SequenceNumber: max + 1,
			Speaker:        model.SpeakerVisitor,
			Text:           text,
		})
		if err == nil {
			return turn, nil
		}
		if apperrors.HasCode(err, apperrors.ErrCodeSequenceConflict) && attempt == 0 {
			continue
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Database(fmt.Errorf("append turn: %w", err))
	}
	return nil, apperrors.SequenceConflict(sessionID, 0)
}

// advanceStage applies the dialogue state machine: one step per turn at
// most, never regressing, with action as the terminal stage.
func advanceStage(stage model.ConversationStage, signals model.ExtractedSignals) model.ConversationStage {
	switch stage {
	case model.StageGreeting:
		if signals.Intent != model.IntentUnknown {
			return stage.NextStage()
		}
	case model.StageDiscovery:
		if signals.Intent != model.IntentUnknown &&
			(signals.BudgetSignal != model.BudgetNone || len(signals.PainPoints) > 0) {
			return stage.NextStage()
		}
	case model.StageQualification:
		if signals.RecommendedAction != model.ActionNone {
			return stage.NextStage()
		}
	}
	return stage
}

// captureLead refreshes the qualification snapshot and enqueues a sync
// intent.
func (s *ConversationService) captureLead(ctx context.Context, session *model.VisitorSession, score LeadScore) (*model.Lead, error) {
	lead, err := s.leadRepo.UpsertForVisitor(ctx, model.UpsertLeadParams{
		ID:         util.NewID(),
		VisitorID:  session.VisitorID,
		Score:      score.Value,
		Category:   score.Category,
		Priority:   score.Priority,
		Signals:    session.Signals,
		Summary:    Summarize(score, session.Signals),
		BattleCard: BattleCard(session.Signals),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert lead: %w", err)
	}

	s.syncQueue.Enqueue(session.VisitorID)
	return lead, nil
}

// History returns the ordered turns of the visitor's session.
func (s *ConversationService) History(ctx context.Context, visitorID string) ([]model.ConversationTurn, error) {
	session, err := s.sessions.FindByVisitorID(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	turns, err := s.turnRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list turns: %w", err))
	}
	return turns, nil
}

// RecordAgentTurn appends an agent utterance to the session transcript.
// Agent turns refine extractor context but never trigger analysis.
func (s *ConversationService) RecordAgentTurn(ctx context.Context, visitorID, text string) error {
	unlock := s.locks.Lock(visitorID)
	defer unlock()

	session, err := s.sessions.FindByVisitorID(ctx, visitorID)
	if err != nil {
		return err
	}
	if session == nil {
		return apperrors.NotFound("session")
	}

	max, err := s.turnRepo.MaxSequence(ctx, session.ID)
	if err != nil {
		return apperrors.Database(fmt.Errorf("max sequence: %w", err))
	}
	_, err = s.turnRepo.Append(ctx, model.AppendTurnParams{
		ID:             util.NewID(),
		SessionID:      session.ID,
		SequenceNumber: max + 1,
		Speaker:        model.SpeakerAgent,
		Text:           text,
	})
	if err != nil && !apperrors.IsAppError(err) {
		return apperrors.Database(fmt.Errorf("append agent turn: %w", err))
	}
	return err
}
