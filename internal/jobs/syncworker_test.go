package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/leadwise/intel-server-go/internal/model"
	"github.com/leadwise/intel-server-go/internal/service"
)

type mockLeadRepo struct {
	mock.Mock
}

func (m *mockLeadRepo) FindByVisitorID(ctx context.Context, visitorID string) (*model.Lead, error) {
	args := m.Called(ctx, visitorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *mockLeadRepo) UpsertForVisitor(ctx context.Context, params model.UpsertLeadParams) (*model.Lead, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *mockLeadRepo) TopByScore(ctx context.Context, limit int) ([]model.Lead, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Lead), args.Error(1)
}

func (m *mockLeadRepo) MarkSynced(ctx context.Context, visitorID, crmRecordID string) error {
	args := m.Called(ctx, visitorID, crmRecordID)
	return args.Error(0)
}

func (m *mockLeadRepo) MarkSyncFailed(ctx context.Context, visitorID, syncError string) error {
	args := m.Called(ctx, visitorID, syncError)
	return args.Error(0)
}

func (m *mockLeadRepo) MarkSyncPending(ctx context.Context, visitorID string) error {
	args := m.Called(ctx, visitorID)
	return args.Error(0)
}

func (m *mockLeadRepo) FindPendingSync(ctx context.Context, limit int) ([]model.Lead, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.Lead), args.Error(1)
}

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

// newCRMBackend stands in for both the OAuth and CRM endpoints.
func newCRMBackend(t *testing.T, crmStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/crm/v2/Leads/upsert", func(w http.ResponseWriter, r *http.Request) {
		if crmStatus != http.StatusOK {
			w.WriteHeader(crmStatus)
			return
		}
		fmt.Fprint(w, `{"data":[{"code":"SUCCESS","status":"success","action":"insert","details":{"id":"crm-9"}}]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newWorker(t *testing.T, leadRepo *mockLeadRepo, sessionRepo *mockSessionRepo, crmStatus int) *SyncWorker {
	t.Helper()
	backend := newCRMBackend(t, crmStatus)
	tokens := service.NewTokenManager(backend.URL, "id", "secret", "refresh", 5*time.Second)
	crm := service.NewCRMClient(backend.URL, tokens, 5*time.Second)
	sessions := service.NewSessionService(sessionRepo, 30*time.Minute)
	return NewSyncWorker(leadRepo, sessions, crm, nil)
}

func pendingLead(visitorID string) *model.Lead {
	return &model.Lead{
		ID:         "lead-1",
		VisitorID:  visitorID,
		Score:      80,
		Category:   model.CategoryHot,
		Priority:   model.PriorityHigh,
		Signals:    model.EmptySignals(),
		Summary:    "HOT lead (80/100)",
		SyncStatus: model.SyncStatusPending,
	}
}

func TestSyncWorker(t *testing.T) {
	t.Run("successful sync marks lead and session synced", func(t *testing.T) {
		leadRepo := new(mockLeadRepo)
		sessionRepo := new(mockSessionRepo)

		synced := make(chan struct{})
		leadRepo.On("FindByVisitorID", mock.Anything, "v-1").Return(pendingLead("v-1"), nil)
		leadRepo.On("MarkSynced", mock.Anything, "v-1", "crm-9").Return(nil)
		sessionRepo.On("MarkSynced", mock.Anything, "v-1").Return(nil).Run(func(args mock.Arguments) {
			close(synced)
		})

		worker := newWorker(t, leadRepo, sessionRepo, http.StatusOK)
		worker.wg.Add(1)
		go worker.run()
		defer worker.Stop()

		worker.Enqueue("v-1")

		select {
		case <-synced:
		case <-time.After(5 * time.Second):
			t.Fatal("sync did not complete")
		}
		leadRepo.AssertExpectations(t)
	})

	t.Run("exhausted retries mark lead failed", func(t *testing.T) {
		leadRepo := new(mockLeadRepo)
		sessionRepo := new(mockSessionRepo)

		failed := make(chan struct{})
		leadRepo.On("FindByVisitorID", mock.Anything, "v-2").Return(pendingLead("v-2"), nil)
		leadRepo.On("MarkSyncFailed", mock.Anything, "v-2", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
			close(failed)
		})

		worker := newWorker(t, leadRepo, sessionRepo, http.StatusServiceUnavailable)
		worker.wg.Add(1)
		go worker.run()
		defer worker.Stop()

		worker.Enqueue("v-2")

		select {
		case <-failed:
		case <-time.After(30 * time.Second):
			t.Fatal("failure was not recorded")
		}
		sessionRepo.AssertNotCalled(t, "MarkSynced", mock.Anything, mock.Anything)
	})

	t.Run("already synced lead is skipped", func(t *testing.T) {
		leadRepo := new(mockLeadRepo)
		sessionRepo := new(mockSessionRepo)

		lead := pendingLead("v-3")
		lead.SyncStatus = model.SyncStatusSynced

		seen := make(chan struct{})
		leadRepo.On("FindByVisitorID", mock.Anything, "v-3").Return(lead, nil).Run(func(args mock.Arguments) {
			close(seen)
		})

		worker := newWorker(t, leadRepo, sessionRepo, http.StatusOK)
		worker.wg.Add(1)
		go worker.run()
		defer worker.Stop()

		worker.Enqueue("v-3")

		select {
		case <-seen:
		case <-time.After(5 * time.Second):
			t.Fatal("lead was never looked up")
		}
		leadRepo.AssertNotCalled(t, "MarkSynced", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("start requeues pending leads", func(t *testing.T) {
		leadRepo := new(mockLeadRepo)
		sessionRepo := new(mockSessionRepo)

		requeued := make(chan struct{})
		leadRepo.On("FindPendingSync", mock.Anything, mock.Anything).Return([]model.Lead{*pendingLead("v-4")}, nil)
		leadRepo.On("FindByVisitorID", mock.Anything, "v-4").Return(pendingLead("v-4"), nil)
		leadRepo.On("MarkSynced", mock.Anything, "v-4", "crm-9").Return(nil)
		sessionRepo.On("MarkSynced", mock.Anything, "v-4").Return(nil).Run(func(args mock.Arguments) {
			close(requeued)
		})

		worker := newWorker(t, leadRepo, sessionRepo, http.StatusOK)
		worker.Start()
		defer worker.Stop()

		select {
		case <-requeued:
		case <-time.After(5 * time.Second):
			t.Fatal("pending lead was not requeued")
		}
	})
}

func TestSweepJob(t *testing.T) {
	sessionRepo := new(mockSessionRepo)

	swept := make(chan struct{})
	sessionRepo.On("MarkTimedOutBefore", mock.Anything, mock.Anything).Return(int64(2), nil).Run(func(args mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	})

	sessions := service.NewSessionService(sessionRepo, 30*time.Minute)
	job := NewSweepJob(sessions, time.Hour)
	job.Start()
	defer job.Stop()

	// The first sweep runs immediately, not on the first tick.
	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not run")
	}
}
