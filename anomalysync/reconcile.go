package anomalysync

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/anomaly_backend/config"
	"github.com/mmdatafocus/anomaly_backend/metrics"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/upstream"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/mmdatafocus/anomaly_backend/anomalysync")

var errMissingDetectedAt = errors.New("detected_at is required")

type ReconcileResult struct {
	Inserted int `json:"inserted"`
	// Existing counts candidates already stored, including inserts that lost a
	// race on the unique key.
	Existing int `json:"existing"`
	Invalid  int `json:"invalid"`
}

// Reconciler merges upstream records into the store. A row is written once,
// on first sight of its external id, and never touched again from upstream.
type Reconciler struct {
	store    ReconcileStore
	events   EventPublisher
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewReconciler(store ReconcileStore, events EventPublisher, logger *logrus.Logger) *Reconciler {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Reconciler{
		store:    store,
		events:   events,
		validate: validator.New(),
		logger:   logger,
	}
}

// Reconcile fails only when the store does. Candidate order does not matter.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []upstream.Anomaly) (ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "anomalysync.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	var result ReconcileResult
	for i := range candidates {
		candidate := candidates[i]

		if err := r.check(candidate); err != nil {
			result.Invalid++
			metrics.ReconcileInvalidTotal.Inc()
			config.LogWarn(r.logger, "anomalysync", "Reconcile", "invalid candidate", candidate.ID, err)
			continue
		}

		existing, err := r.store.GetByExternalId(ctx, candidate.ID)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Existing++
			continue
		}

		row := newAnomalyFromUpstream(candidate)
		if err := r.store.Create(ctx, row); err != nil {
			if errors.Is(err, models.ErrDuplicateExternalId) {
				// a concurrent request inserted it first
				result.Existing++
				metrics.ReconcileDuplicatesTotal.Inc()
				continue
			}
			return result, err
		}

		result.Inserted++
		metrics.ReconcileInsertedTotal.Inc()
		r.publish(ctx, newAnomalyEvent(ctx, EventIngested, row))
	}

	span.SetAttributes(
		attribute.Int("inserted", result.Inserted),
		attribute.Int("existing", result.Existing),
		attribute.Int("invalid", result.Invalid),
	)
	return result, nil
}

func (r *Reconciler) check(candidate upstream.Anomaly) error {
	if err := r.validate.Struct(candidate); err != nil {
		return err
	}
	if candidate.DetectedAt.IsZero() {
		return errMissingDetectedAt
	}
	return nil
}

func (r *Reconciler) publish(ctx context.Context, event AnomalyEvent) {
	if err := r.events.Publish(ctx, event); err != nil {
		config.LogWarn(r.logger, "anomalysync", "Reconcile", "publish "+event.Action, event.ExternalId, err)
	}
}

// newAnomalyFromUpstream maps a candidate 1:1. Upstream resolution details are
// not copied; resolvedAt and resolution are only written by a local resolve.
func newAnomalyFromUpstream(candidate upstream.Anomaly) *models.Anomaly {
	status := models.AnomalyStatusDetected
	if candidate.Status == string(models.AnomalyStatusResolved) {
		status = models.AnomalyStatusResolved
	}
	return &models.Anomaly{
		ExternalId:       candidate.ID,
		Type:             candidate.Type,
		Description:      candidate.Description,
		Severity:         candidate.Severity,
		Status:           status,
		Source:           candidate.Source,
		Metadata:         candidate.Metadata,
		DetectedAt:       candidate.DetectedAt,
		BlockchainTxHash: nil,
	}
}
