package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleetdetention/internal/metrics"
	"fleetdetention/internal/model"
)

const EventAlertCreated = "alert.created"

// Delivery is one queued webhook call.
type Delivery struct {
	ID        string
	EventType string
	Payload   []byte
}

// Publisher turns alerts into webhook deliveries on a bounded queue. It never
// blocks the caller; deliveries are dropped when the queue is full.
type Publisher struct {
	queue  chan Delivery
	logger zerolog.Logger
	now    func() time.Time
}

func NewPublisher(size int, logger zerolog.Logger) *Publisher {
	if size <= 0 {
		size = 256
	}
	return &Publisher{queue: make(chan Delivery, size), logger: logger, now: time.Now}
}

// Queue is drained by a Worker.
func (p *Publisher) Queue() <-chan Delivery { return p.queue }

// OnAlertCreated enqueues an alert.created event.
func (p *Publisher) OnAlertCreated(a model.Alert) {
	p.Emit(EventAlertCreated, a)
}

// Emit wraps data in the event envelope and enqueues it.
func (p *Publisher) Emit(eventType string, data any) {
	id := "evt_" + uuid.NewString()
	payload := map[string]any{
		"id":   id,
		"type": eventType,
		"ts":   p.now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("webhook payload encode failed")
		return
	}
	select {
	case p.queue <- Delivery{ID: id, EventType: eventType, Payload: body}:
	default:
		metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
		p.logger.Warn().Str("event_id", id).Str("event_type", eventType).Int("capacity", cap(p.queue)).Msg("webhook queue full, dropping event")
	}
}
