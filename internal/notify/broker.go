package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/model"
	redisclient "github.com/leadwise/intel-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Event types pushed to the sales dashboard feed.
const (
	EventLeadQualified = "lead.qualified"
	EventLeadSynced    = "lead.synced"
	EventSyncFailed    = "lead.sync_failed"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LeadEvent is the payload carried by every lead lifecycle event.
type LeadEvent struct {
	VisitorID string              `json:"visitorId"`
	Score     int                 `json:"score"`
	Category  model.ScoreCategory `json:"category"`
	Priority  model.Priority      `json:"priority,omitempty"`
	Summary   string              `json:"summary,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type Client struct {
	Events chan Event
	Done   chan struct{}
}

// Broker fans lead events out to connected SSE clients. Events travel
// through redis pub/sub so every server instance sees qualifications made
// by its peers.
type Broker struct {
	redis   *redisclient.Client
	clients map[*Client]bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe() *Client {
	client := &Client{
		Events: make(chan Event, 100),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[client] = true
	clientCount := len(b.clients)
	b.mu.Unlock()

	b.once.Do(func() {
		go b.subscribeToRedis()
	})

	log.Info().
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.Done)

		log.Info().
			Int("clientCount", len(b.clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish pushes a lead event onto the shared redis channel. Failures are
// logged by callers; a dropped event never blocks the conversation path.
func (b *Broker) Publish(ctx context.Context, eventType string, payload LeadEvent) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.LeadEventChannel(), event).Err()
}

func (b *Broker) subscribeToRedis() {
	pubsub := b.redis.Subscribe(b.ctx, redisclient.LeadEventChannel())
	defer pubsub.Close()

	log.Debug().
		Str("channel", redisclient.LeadEventChannel()).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal lead event")
				continue
			}

			b.broadcast(event)
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		close(client.Done)
	}
	b.clients = make(map[*Client]bool)
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
