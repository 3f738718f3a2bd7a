package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/model"
	"github.com/leadwise/intel-server-go/internal/repository"
	"github.com/leadwise/intel-server-go/internal/util"
)

type SessionService struct {
	repo    repository.SessionRepository
	timeout time.Duration
}

func NewSessionService(repo repository.SessionRepository, timeout time.Duration) *SessionService {
	return &SessionService{repo: repo, timeout: timeout}
}

// GetOrCreate returns the visitor's session, creating one on first contact.
// A session idle past the timeout is re-activated: visit_count increments,
// the conversation stage resets to greeting, accumulated signals survive.
// isNewVisit reports whether this call started a fresh activity burst.
func (s *SessionService) GetOrCreate(ctx context.Context, visitorID string) (session *model.VisitorSession, isNewVisit bool, err error) {
	existing, err := s.repo.FindByVisitorID(ctx, visitorID)
	if err != nil {
		return nil, false, apperrors.Database(fmt.Errorf("find session: %w", err))
	}

	if existing == nil {
		created, err := s.repo.Create(ctx, model.CreateSessionParams{
			ID:        util.NewID(),
			VisitorID: visitorID,
			Signals:   model.EmptySignals(),
		})
		if err != nil {
			return nil, false, apperrors.Database(fmt.Errorf("create session: %w", err))
		}

		log.Info().
			Str("visitorId", visitorID).
			Str("sessionId", created.ID).
			Msg("first visit, session created")

		return created, true, nil
	}

	if time.Since(existing.LastActiveAt) > s.timeout {
		reactivated, err := s.repo.Reactivate(ctx, visitorID)
		if err != nil {
			return nil, false, apperrors.Database(fmt.Errorf("reactivate session: %w", err))
		}
		if reactivated == nil {
			return nil, false, apperrors.NotFound("session")
		}

		log.Info().
			Str("visitorId", visitorID).
			Int("visitCount", reactivated.VisitCount).
			Msg("new visit after timeout, session reactivated")

		return reactivated, true, nil
	}

	return existing, false, nil
}

// Touch bumps last_active_at. Called on every inbound message; racing
// touches resolve last-write-wins with a monotonic guard in the store.
func (s *SessionService) Touch(ctx context.Context, visitorID string) error {
	if err := s.repo.Touch(ctx, visitorID, time.Now()); err != nil {
		return apperrors.Database(fmt.Errorf("touch session: %w", err))
	}
	return nil
}

// ExpireSweep transitions every active session idle past the timeout to
// timed_out. Idempotent; safe to run concurrently with per-request touches
// since the transition is monotonic and a racing touch only delays it.
func (s *SessionService) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.MarkTimedOutBefore(ctx, now.Add(-s.timeout))
	if err != nil {
		return 0, apperrors.Database(fmt.Errorf("expire sweep: %w", err))
	}
	if count > 0 {
		log.Info().Int64("count", count).Msg("sessions timed out")
	}
	return count, nil
}

func (s *SessionService) FindByVisitorID(ctx context.Context, visitorID string) (*model.VisitorSession, error) {
	session, err := s.repo.FindByVisitorID(ctx, visitorID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	return session, nil
}

func (s *SessionService) MarkSynced(ctx context.Context, visitorID string) error {
	if err := s.repo.MarkSynced(ctx, visitorID); err != nil {
		return apperrors.Database(fmt.Errorf("mark session synced: %w", err))
	}
	return nil
}
