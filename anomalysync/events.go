package anomalysync

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/utils"
)

const (
	EventIngested = "anomaly.ingested"
	EventResolved = "anomaly.resolved"

	publishTimeout = 5 * time.Second
)

type AnomalyEvent struct {
	Action        string                 `json:"action"`
	AnomalyId     uint                   `json:"anomaly_id"`
	ExternalId    string                 `json:"external_id"`
	Type          models.AnomalyType     `json:"type"`
	Severity      models.AnomalySeverity `json:"severity"`
	Status        models.AnomalyStatus   `json:"status"`
	CorrelationId string                 `json:"correlation_id,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

func newAnomalyEvent(ctx context.Context, action string, row *models.Anomaly) AnomalyEvent {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	return AnomalyEvent{
		Action:        action,
		AnomalyId:     row.ID,
		ExternalId:    row.ExternalId,
		Type:          row.Type,
		Severity:      row.Severity,
		Status:        row.Status,
		CorrelationId: cid,
		OccurredAt:    time.Now().UTC(),
	}
}

// EventPublisher announces anomaly lifecycle changes. Publishing is best effort;
// callers log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event AnomalyEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, AnomalyEvent) error { return nil }

type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

func (p *PubSubPublisher) Publish(ctx context.Context, event AnomalyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"action": event.Action},
	})
	_, err = res.Get(ctx)
	return err
}
