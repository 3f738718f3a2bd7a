package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/model"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByVisitorID(ctx context.Context, visitorID string) (*model.VisitorSession, error) {
	args := m.Called(ctx, visitorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VisitorSession), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.VisitorSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VisitorSession), args.Error(1)
}

func (m *mockSessionRepo) Reactivate(ctx context.Context, visitorID string) (*model.VisitorSession, error) {
	args := m.Called(ctx, visitorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VisitorSession), args.Error(1)
}

func (m *mockSessionRepo) Touch(ctx context.Context, visitorID string, now time.Time) error {
	args := m.Called(ctx, visitorID, now)
	return args.Error(0)
}

func (m *mockSessionRepo) UpdateAfterTurn(ctx context.Context, params model.SessionUpdateParams) (*model.VisitorSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VisitorSession), args.Error(1)
}

func (m *mockSessionRepo) MarkTimedOutBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) MarkSynced(ctx context.Context, visitorID string) error {
	args := m.Called(ctx, visitorID)
	return args.Error(0)
}

func activeSession(visitorID string, lastActive time.Time) *model.VisitorSession {
	return &model.VisitorSession{
		ID:           "sess-1",
		VisitorID:    visitorID,
		Status:       model.SessionStatusActive,
		Stage:        model.StageDiscovery,
		VisitCount:   1,
		Signals:      model.EmptySignals(),
		LastActiveAt: lastActive,
	}
}

func TestSessionGetOrCreate(t *testing.T) {
	ctx := context.Background()
	timeout := 30 * time.Minute

	t.Run("first contact creates a session", func(t *testing.T) {
		repo := new(mockSessionRepo)
		repo.On("FindByVisitorID", ctx, "v-1").Return(nil, nil)
		repo.On("Create", ctx, mock.MatchedBy(func(p model.CreateSessionParams) bool {
			return p.VisitorID == "v-1" && p.ID != ""
		})).Return(activeSession("v-1", time.Now()), nil)

		svc := NewSessionService(repo, timeout)
		session, isNewVisit, err := svc.GetOrCreate(ctx, "v-1")

		assert.NoError(t, err)
		assert.True(t, isNewVisit)
		assert.Equal(t, "v-1", session.VisitorID)
		repo.AssertExpectations(t)
	})

	t.Run("active session within timeout is returned as-is", func(t *testing.T) {
		repo := new(mockSessionRepo)
		existing := activeSession("v-2", time.Now().Add(-5*time.Minute))
		repo.On("FindByVisitorID", ctx, "v-2").Return(existing, nil)

		svc := NewSessionService(repo, timeout)
		session, isNewVisit, err := svc.GetOrCreate(ctx, "v-2")

		assert.NoError(t, err)
		assert.False(t, isNewVisit)
		assert.Same(t, existing, session)
		repo.AssertNotCalled(t, "Reactivate", mock.Anything, mock.Anything)
	})

	t.Run("session idle past timeout is reactivated", func(t *testing.T) {
		repo := new(mockSessionRepo)
		stale := activeSession("v-3", time.Now().Add(-45*time.Minute))
		stale.Signals = model.ExtractedSignals{Intent: model.IntentBuying}

		reactivated := activeSession("v-3", time.Now())
		reactivated.VisitCount = 2
		reactivated.Stage = model.StageGreeting
		reactivated.Signals = stale.Signals

		repo.On("FindByVisitorID", ctx, "v-3").Return(stale, nil)
		repo.On("Reactivate", ctx, "v-3").Return(reactivated, nil)

		svc := NewSessionService(repo, timeout)
		session, isNewVisit, err := svc.GetOrCreate(ctx, "v-3")

		assert.NoError(t, err)
		assert.True(t, isNewVisit)
		assert.Equal(t, 2, session.VisitCount)
		assert.Equal(t, model.StageGreeting, session.Stage)
		assert.Equal(t, model.IntentBuying, session.Signals.Intent)
		repo.AssertExpectations(t)
	})

	t.Run("repository error wraps as database error", func(t *testing.T) {
		repo := new(mockSessionRepo)
		repo.On("FindByVisitorID", ctx, "v-4").Return(nil, assert.AnError)

		svc := NewSessionService(repo, timeout)
		_, _, err := svc.GetOrCreate(ctx, "v-4")

		assert.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
	})
}

func TestSessionExpireSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	timeout := 30 * time.Minute

	repo := new(mockSessionRepo)
	repo.On("MarkTimedOutBefore", ctx, mock.MatchedBy(func(cutoff time.Time) bool {
		return cutoff.Equal(now.Add(-timeout))
	})).Return(int64(3), nil)

	svc := NewSessionService(repo, timeout)
	count, err := svc.ExpireSweep(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
	repo.AssertExpectations(t)
}
