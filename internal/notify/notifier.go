package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/model"
)

// Notifier translates lead lifecycle moments into broker events. Publish
// failures are logged and swallowed; notifications are best effort.
type Notifier struct {
	broker *Broker
}

func NewNotifier(broker *Broker) *Notifier {
	return &Notifier{broker: broker}
}

func (n *Notifier) LeadQualified(ctx context.Context, lead *model.Lead) {
	n.publish(ctx, EventLeadQualified, LeadEvent{
		VisitorID: lead.VisitorID,
		Score:     lead.Score,
		Category:  lead.Category,
		Priority:  lead.Priority,
		Summary:   lead.Summary,
	})
}

func (n *Notifier) LeadSynced(ctx context.Context, lead *model.Lead) {
	n.publish(ctx, EventLeadSynced, LeadEvent{
		VisitorID: lead.VisitorID,
		Score:     lead.Score,
		Category:  lead.Category,
	})
}

func (n *Notifier) SyncFailed(ctx context.Context, lead *model.Lead, cause error) {
	n.publish(ctx, EventSyncFailed, LeadEvent{
		VisitorID: lead.VisitorID,
		Score:     lead.Score,
		Category:  lead.Category,
		Error:     cause.Error(),
	})
}

func (n *Notifier) publish(ctx context.Context, eventType string, payload LeadEvent) {
	if err := n.broker.Publish(ctx, eventType, payload); err != nil {
		log.Warn().
			Err(err).
			Str("eventType", eventType).
			Str("visitorId", payload.VisitorID).
			Msg("failed to publish lead event")
	}
}
