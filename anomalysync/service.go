package anomalysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/anomaly_backend/config"
	"github.com/mmdatafocus/anomaly_backend/metrics"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/upstream"
	"github.com/sirupsen/logrus"
)

const detectLockKey = "lock:anomaly-detect"

var (
	ErrUpstreamSyncDisabled = errors.New("upstream sync disabled")
	ErrDetectInProgress     = errors.New("anomaly detection already in progress")
	ErrUpstreamDetectFailed = errors.New("failed to trigger anomaly detection")
	ErrResolutionRequired   = errors.New("resolution is required")
)

type ListResult struct {
	Source         Source           `json:"source"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	Reconciled     *ReconcileResult `json:"reconciled,omitempty"`
	Anomalies      []models.Anomaly `json:"anomalies"`
}

type StatsResult struct {
	Source         Source               `json:"source"`
	FallbackReason string               `json:"fallback_reason,omitempty"`
	Stats          models.StatsSnapshot `json:"stats"`
}

// FilterInput picks at most one dimension: type, then severity, then status.
// The first non-empty field wins and the rest are ignored unchecked. A value
// outside its enumeration matches no rows.
type FilterInput struct {
	Type     string `form:"type" json:"type"`
	Severity string `form:"severity" json:"severity"`
	Status   string `form:"status" json:"status"`
}

// Service answers reads for the presentation layer. Reads go to upstream
// first where the operation calls for it and fall back to the store.
type Service struct {
	store       Store
	upstream    Upstream
	reconciler  *Reconciler
	events      EventPublisher
	syncStatus  *SyncStatusRecorder
	locker      Locker
	detectTTL   time.Duration
	syncEnabled func() bool
	now         func() time.Time
	logger      *logrus.Logger
}

type Option func(*Service)

func WithEvents(events EventPublisher) Option {
	return func(s *Service) {
		if events != nil {
			s.events = events
		}
	}
}

func WithSyncStatus(recorder *SyncStatusRecorder) Option {
	return func(s *Service) { s.syncStatus = recorder }
}

// WithDetectLock serializes detect triggers across replicas. ttl should cover
// the upstream detect timeout.
func WithDetectLock(locker Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = locker
		s.detectTTL = ttl
	}
}

func WithUpstreamSyncGate(enabled func() bool) Option {
	return func(s *Service) {
		if enabled != nil {
			s.syncEnabled = enabled
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, up Upstream, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = config.GetLogger()
	}
	s := &Service{
		store:       store,
		upstream:    up,
		events:      noopPublisher{},
		detectTTL:   15 * time.Second,
		syncEnabled: config.UpstreamSyncEnabled,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = NewReconciler(store, s.events, logger)
	return s
}

// List pulls upstream, reconciles, then reads back every row newest first.
// Upstream failure is not an error; the store's current rows are returned.
func (s *Service) List(ctx context.Context) (ListResult, error) {
	fetched := s.fetchList(ctx)

	result := ListResult{Source: fetched.Source, FallbackReason: fetched.ReasonText()}
	if fetched.IsUpstream() {
		reconciled, err := s.reconciler.Reconcile(ctx, fetched.Data)
		if err != nil {
			config.LogError(s.logger, "anomalysync", "List", "Reconcile", nil, err)
			return ListResult{}, err
		}
		result.Reconciled = &reconciled
		s.syncStatus.RecordSuccess(ctx, s.now(), reconciled)
	} else {
		s.logFallback("List", fetched.Reason)
		s.syncStatus.RecordFallback(ctx, s.now(), fetched.ReasonText())
	}

	rows, err := s.store.List(ctx)
	if err != nil {
		config.LogError(s.logger, "anomalysync", "List", "store.List", nil, err)
		return ListResult{}, err
	}
	result.Anomalies = rows
	return result, nil
}

// Stats returns the upstream report untouched when it is reachable and
// counts local rows otherwise.
func (s *Service) Stats(ctx context.Context) (StatsResult, error) {
	report := s.fetchReport(ctx)

	var rows []models.Anomaly
	if !report.IsUpstream() {
		s.logFallback("Stats", report.Reason)
		var err error
		rows, err = s.store.List(ctx)
		if err != nil {
			config.LogError(s.logger, "anomalysync", "Stats", "store.List", nil, err)
			return StatsResult{}, err
		}
	}

	metrics.StatsSourceTotal.WithLabelValues(string(report.Source)).Inc()
	return StatsResult{
		Source:         report.Source,
		FallbackReason: report.ReasonText(),
		Stats:          Aggregate(report, rows),
	}, nil
}

// GetById reads the store only. A miss is models.ErrAnomalyNotFound.
func (s *Service) GetById(ctx context.Context, id uint) (*models.Anomaly, error) {
	return s.store.GetById(ctx, id)
}

// Filter reads the store only and honours a single dimension per call.
func (s *Service) Filter(ctx context.Context, input FilterInput) ([]models.Anomaly, error) {
	switch {
	case input.Type != "":
		return s.store.ListByType(ctx, models.AnomalyType(input.Type))
	case input.Severity != "":
		return s.store.ListBySeverity(ctx, models.AnomalySeverity(input.Severity))
	case input.Status != "":
		return s.store.ListByStatus(ctx, models.AnomalyStatus(input.Status))
	default:
		return s.store.List(ctx)
	}
}

// LocalList reads every stored row without contacting upstream.
func (s *Service) LocalList(ctx context.Context) ([]models.Anomaly, error) {
	return s.store.List(ctx)
}

// Resolve is the operator's single-row update; it does not involve upstream.
func (s *Service) Resolve(ctx context.Context, id uint, resolution string) (*models.Anomaly, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, ErrResolutionRequired
	}
	row, err := s.store.Resolve(ctx, id, resolution, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.events.Publish(ctx, newAnomalyEvent(ctx, EventResolved, row)); err != nil {
		config.LogWarn(s.logger, "anomalysync", "Resolve", "publish "+EventResolved, row.ExternalId, err)
	}
	return row, nil
}

// Detect asks upstream to run detection. Unlike reads it has no local
// fallback, so upstream failure is returned as ErrUpstreamDetectFailed.
func (s *Service) Detect(ctx context.Context) (json.RawMessage, error) {
	if s.locker != nil {
		release, err := s.locker.Obtain(ctx, detectLockKey, s.detectTTL)
		if errors.Is(err, errLockNotObtained) {
			return nil, ErrDetectInProgress
		}
		if err != nil {
			// the lock is an optimization; run unguarded
			config.LogWarn(s.logger, "anomalysync", "Detect", "obtain "+detectLockKey, nil, err)
		} else {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					config.LogWarn(s.logger, "anomalysync", "Detect", "release "+detectLockKey, nil, err)
				}
			}()
		}
	}

	ack, err := s.upstream.TriggerDetect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamDetectFailed, err)
	}
	return ack, nil
}

func (s *Service) SyncStatus(ctx context.Context) (SyncStatus, error) {
	return s.syncStatus.Get(ctx)
}

func (s *Service) fetchList(ctx context.Context) Fetch[[]upstream.Anomaly] {
	if !s.syncEnabled() {
		return LocalFallback[[]upstream.Anomaly](ErrUpstreamSyncDisabled)
	}
	anomalies, err := s.upstream.FetchAnomalyList(ctx)
	if err != nil {
		return LocalFallback[[]upstream.Anomaly](err)
	}
	return FromUpstream(anomalies)
}

func (s *Service) fetchReport(ctx context.Context) Fetch[models.StatsSnapshot] {
	if !s.syncEnabled() {
		return LocalFallback[models.StatsSnapshot](ErrUpstreamSyncDisabled)
	}
	report, err := s.upstream.FetchReport(ctx)
	if err != nil {
		return LocalFallback[models.StatsSnapshot](err)
	}
	return FromUpstream(report)
}

func (s *Service) logFallback(funcName string, reason error) {
	if reason == nil {
		return
	}
	config.LogWarn(s.logger, "anomalysync", funcName, "serving from local store", nil, reason)
}
