package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/audit"
	"github.com/leadwise/intel-server-go/internal/config"
	"github.com/leadwise/intel-server-go/internal/model"
	"github.com/leadwise/intel-server-go/internal/notify"
	"github.com/leadwise/intel-server-go/internal/repository"
	"github.com/leadwise/intel-server-go/internal/service"
)

// SyncWorker drains CRM sync intents off the conversation path. Intents
// are keyed by visitor; the worker always reads the latest lead snapshot
// before pushing, so a burst of qualifying turns collapses into whatever
// state is current when the intent is processed.
type SyncWorker struct {
	leadRepo repository.LeadRepository
	sessions *service.SessionService
	crm      *service.CRMClient
	notifier *notify.Notifier

	queue chan string
	done  chan struct{}
	wg    sync.WaitGroup
}

func NewSyncWorker(
	leadRepo repository.LeadRepository,
	sessions *service.SessionService,
	crm *service.CRMClient,
	notifier *notify.Notifier,
) *SyncWorker {
	return &SyncWorker{
		leadRepo: leadRepo,
		sessions: sessions,
		crm:      crm,
		notifier: notifier,
		queue:    make(chan string, config.SyncQueueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue registers a sync intent. A full queue drops the intent; the
// pending-sync requeue on startup and manual re-sync cover the gap.
func (w *SyncWorker) Enqueue(visitorID string) {
	select {
	case w.queue <- visitorID:
	default:
		log.Warn().Str("visitorId", visitorID).Msg("sync queue full, dropping intent")
	}
}

func (w *SyncWorker) Start() {
	w.wg.Add(1)
	go w.run()
	log.Info().Msg("crm sync worker started")

	go w.requeuePending()
}

// Stop drains nothing further; in-flight syncs finish before return.
func (w *SyncWorker) Stop() {
	close(w.done)
	w.wg.Wait()
	log.Info().Msg("crm sync worker stopped")
}

func (w *SyncWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case visitorID := <-w.queue:
			w.syncOne(visitorID)
		}
	}
}

// requeuePending reloads leads that were queued but never synced before
// the last shutdown.
func (w *SyncWorker) requeuePending() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	leads, err := w.leadRepo.FindPendingSync(ctx, config.SyncQueueSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to load pending syncs")
		return
	}
	for i := range leads {
		w.Enqueue(leads[i].VisitorID)
	}
	if len(leads) > 0 {
		log.Info().Int("count", len(leads)).Msg("requeued pending crm syncs")
	}
}

func (w *SyncWorker) syncOne(visitorID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	lead, err := w.leadRepo.FindByVisitorID(ctx, visitorID)
	if err != nil {
		log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to load lead for sync")
		return
	}
	if lead == nil {
		log.Warn().Str("visitorId", visitorID).Msg("sync intent for unknown lead")
		return
	}
	if lead.SyncStatus == model.SyncStatusSynced {
		return
	}

	result, err := w.crm.Upsert(ctx, lead)
	if err != nil {
		w.recordFailure(ctx, lead, err)
		return
	}

	if err := w.leadRepo.MarkSynced(ctx, visitorID, result.CRMRecordID); err != nil {
		log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to mark lead synced")
		return
	}
	if err := w.sessions.MarkSynced(ctx, visitorID); err != nil {
		log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to mark session synced")
	}

	if w.notifier != nil {
		w.notifier.LeadSynced(ctx, lead)
	}

	log.Info().
		Str("visitorId", visitorID).
		Str("crmRecordId", result.CRMRecordID).
		Msg("lead synced to crm")
}

func (w *SyncWorker) recordFailure(ctx context.Context, lead *model.Lead, cause error) {
	log.Error().
		Err(cause).
		Str("visitorId", lead.VisitorID).
		Msg("crm sync failed")

	if err := w.leadRepo.MarkSyncFailed(ctx, lead.VisitorID, cause.Error()); err != nil {
		log.Error().Err(err).Str("visitorId", lead.VisitorID).Msg("failed to record sync failure")
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventCRMSyncFailure,
		VisitorID: lead.VisitorID,
		Details:   map[string]interface{}{"error": cause.Error()},
	})
	if w.notifier != nil {
		w.notifier.SyncFailed(ctx, lead, cause)
	}
}
