package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Anomaly is one reconciled record. ExternalId is the upstream business key,
// ID is the local surrogate key.
type Anomaly struct {
	ID               uint            `gorm:"primary_key" json:"id"`
	ExternalId       string          `gorm:"size:64;not null;uniqueIndex:uniq_anomaly_external_id" json:"external_id"`
	Type             AnomalyType     `gorm:"type:enum('ledger_divergence','dao_vote_failure','commit_anomaly','node_desync','network_latency','data_corruption');not null;index" json:"type"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	Severity         AnomalySeverity `gorm:"type:enum('low','medium','high','critical');not null;index" json:"severity"`
	Status           AnomalyStatus   `gorm:"type:enum('detected','investigating','resolved','ignored');not null;default:detected;index" json:"status"`
	Source           string          `gorm:"size:255;not null" json:"source"`
	Metadata         Metadata        `gorm:"type:json" json:"metadata,omitempty"`
	DetectedAt       time.Time       `gorm:"not null;index" json:"detected_at"`
	ResolvedAt       *time.Time      `json:"resolved_at"`
	Resolution       *string         `gorm:"type:text" json:"resolution"`
	BlockchainTxHash *string         `gorm:"size:128" json:"blockchain_tx_hash"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StatsSnapshot is derived on every request and never persisted.
// Breakdown maps only carry values that are present.
type StatsSnapshot struct {
	Total      int            `json:"total_anomalies"`
	Resolved   int            `json:"resolved_anomalies"`
	Pending    int            `json:"pending_anomalies"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
	ByStatus   map[string]int `json:"by_status"`

	// Raw holds the document a snapshot was decoded from. When set it is
	// what gets marshalled, so an upstream report passes through unchanged.
	Raw json.RawMessage `json:"-"`
}

type plainStatsSnapshot StatsSnapshot

func (s StatsSnapshot) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(plainStatsSnapshot(s))
}

func (s *StatsSnapshot) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var plain plainStatsSnapshot
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	*s = StatsSnapshot(plain)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// AnomalyStore is the durable record of anomalies. It owns no connection
// lifecycle; the handle is opened and closed by the process.
type AnomalyStore struct {
	db *gorm.DB
}

func NewAnomalyStore(db *gorm.DB) *AnomalyStore {
	return &AnomalyStore{db: db}
}

func (s *AnomalyStore) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreNotConfigured
	}
	return s.db.WithContext(ctx), nil
}

// Ping checks the store can serve queries.
func (s *AnomalyStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return storeError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// GetByExternalId returns nil, nil when no row carries externalId.
func (s *AnomalyStore) GetByExternalId(ctx context.Context, externalId string) (*Anomaly, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var anomaly Anomaly
	if err := db.Where("external_id = ?", externalId).Take(&anomaly).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError("get by external id", err)
	}
	return &anomaly, nil
}

// Create inserts a new row. A unique-key collision on external_id returns
// ErrDuplicateExternalId.
func (s *AnomalyStore) Create(ctx context.Context, anomaly *Anomaly) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(anomaly).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateExternalId
		}
		return storeError("create", err)
	}
	return nil
}

func (s *AnomalyStore) GetById(ctx context.Context, id uint) (*Anomaly, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var anomaly Anomaly
	if err := db.Where("id = ?", id).Take(&anomaly).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnomalyNotFound
		}
		return nil, storeError("get by id", err)
	}
	return &anomaly, nil
}

// List returns every row, newest detection first.
func (s *AnomalyStore) List(ctx context.Context) ([]Anomaly, error) {
	return s.listWhere(ctx, "list", "", nil)
}

func (s *AnomalyStore) ListByType(ctx context.Context, anomalyType AnomalyType) ([]Anomaly, error) {
	return s.listWhere(ctx, "list by type", "type = ?", anomalyType)
}

func (s *AnomalyStore) ListBySeverity(ctx context.Context, severity AnomalySeverity) ([]Anomaly, error) {
	return s.listWhere(ctx, "list by severity", "severity = ?", severity)
}

func (s *AnomalyStore) ListByStatus(ctx context.Context, status AnomalyStatus) ([]Anomaly, error) {
	return s.listWhere(ctx, "list by status", "status = ?", status)
}

func (s *AnomalyStore) listWhere(ctx context.Context, op string, cond string, value any) ([]Anomaly, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		db = db.Where(cond, value)
	}
	anomalies := []Anomaly{}
	if err := db.Order("detected_at DESC").Order("id DESC").Find(&anomalies).Error; err != nil {
		return nil, storeError(op, err)
	}
	return anomalies, nil
}

// Resolve marks the row resolved. It is the only mutation of an existing row.
func (s *AnomalyStore) Resolve(ctx context.Context, id uint, resolution string, resolvedAt time.Time) (*Anomaly, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var anomaly Anomaly
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&anomaly).Error; err != nil {
			return err
		}
		return tx.Model(&anomaly).Updates(map[string]interface{}{
			"status":      AnomalyStatusResolved,
			"resolution":  resolution,
			"resolved_at": resolvedAt,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnomalyNotFound
		}
		return nil, storeError("resolve", err)
	}

	anomaly.Status = AnomalyStatusResolved
	anomaly.Resolution = &resolution
	anomaly.ResolvedAt = &resolvedAt
	return &anomaly, nil
}
