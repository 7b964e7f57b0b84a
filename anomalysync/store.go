package anomalysync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/upstream"
)

// ReconcileStore is the part of the store the reconciler writes through.
type ReconcileStore interface {
	GetByExternalId(ctx context.Context, externalId string) (*models.Anomaly, error)
	Create(ctx context.Context, anomaly *models.Anomaly) error
}

// Store is satisfied by *models.AnomalyStore.
type Store interface {
	ReconcileStore
	GetById(ctx context.Context, id uint) (*models.Anomaly, error)
	List(ctx context.Context) ([]models.Anomaly, error)
	ListByType(ctx context.Context, anomalyType models.AnomalyType) ([]models.Anomaly, error)
	ListBySeverity(ctx context.Context, severity models.AnomalySeverity) ([]models.Anomaly, error)
	ListByStatus(ctx context.Context, status models.AnomalyStatus) ([]models.Anomaly, error)
	Resolve(ctx context.Context, id uint, resolution string, resolvedAt time.Time) (*models.Anomaly, error)
}

// Upstream is satisfied by *upstream.Client.
type Upstream interface {
	FetchAnomalyList(ctx context.Context) ([]upstream.Anomaly, error)
	FetchReport(ctx context.Context) (models.StatsSnapshot, error)
	TriggerDetect(ctx context.Context) (json.RawMessage, error)
}

var (
	_ Store    = (*models.AnomalyStore)(nil)
	_ Upstream = (*upstream.Client)(nil)
)
