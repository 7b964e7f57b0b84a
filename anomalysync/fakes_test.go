package anomalysync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/upstream"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// memStore mirrors AnomalyStore semantics in memory, including the unique
// external id and detected_at DESC, id DESC ordering.
type memStore struct {
	mu     sync.Mutex
	nextId uint
	rows   map[uint]models.Anomaly

	// skipLookup makes GetByExternalId always miss, so Create sees the race.
	skipLookup bool
	failWith   error
	creates    int
}

func newMemStore() *memStore {
	return &memStore{rows: map[uint]models.Anomaly{}}
}

func (m *memStore) seed(rows ...models.Anomaly) {
	for i := range rows {
		if err := m.Create(context.Background(), &rows[i]); err != nil {
			panic(err)
		}
	}
}

func (m *memStore) GetByExternalId(ctx context.Context, externalId string) (*models.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.skipLookup {
		return nil, nil
	}
	for _, row := range m.rows {
		if row.ExternalId == externalId {
			r := row
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(ctx context.Context, anomaly *models.Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, row := range m.rows {
		if row.ExternalId == anomaly.ExternalId {
			return models.ErrDuplicateExternalId
		}
	}
	m.nextId++
	anomaly.ID = m.nextId
	if anomaly.Status == "" {
		anomaly.Status = models.AnomalyStatusDetected
	}
	m.rows[anomaly.ID] = *anomaly
	m.creates++
	return nil
}

func (m *memStore) GetById(ctx context.Context, id uint) (*models.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, models.ErrAnomalyNotFound
	}
	return &row, nil
}

func (m *memStore) List(ctx context.Context) ([]models.Anomaly, error) {
	return m.where(func(models.Anomaly) bool { return true })
}

func (m *memStore) ListByType(ctx context.Context, anomalyType models.AnomalyType) ([]models.Anomaly, error) {
	return m.where(func(a models.Anomaly) bool { return a.Type == anomalyType })
}

func (m *memStore) ListBySeverity(ctx context.Context, severity models.AnomalySeverity) ([]models.Anomaly, error) {
	return m.where(func(a models.Anomaly) bool { return a.Severity == severity })
}

func (m *memStore) ListByStatus(ctx context.Context, status models.AnomalyStatus) ([]models.Anomaly, error) {
	return m.where(func(a models.Anomaly) bool { return a.Status == status })
}

func (m *memStore) Resolve(ctx context.Context, id uint, resolution string, resolvedAt time.Time) (*models.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, models.ErrAnomalyNotFound
	}
	row.Status = models.AnomalyStatusResolved
	row.Resolution = &resolution
	row.ResolvedAt = &resolvedAt
	m.rows[id] = row
	return &row, nil
}

func (m *memStore) where(match func(models.Anomaly) bool) ([]models.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := []models.Anomaly{}
	for _, row := range m.rows {
		if match(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type fakeUpstream struct {
	mu          sync.Mutex
	list        []upstream.Anomaly
	report      models.StatsSnapshot
	ack         json.RawMessage
	err         error
	listCalls   int
	reportCalls int
	detectCalls int
}

func failingUpstream() *fakeUpstream {
	return &fakeUpstream{err: errors.New("list: upstream unavailable")}
}

func (f *fakeUpstream) FetchAnomalyList(ctx context.Context) ([]upstream.Anomaly, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeUpstream) FetchReport(ctx context.Context) (models.StatsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCalls++
	if f.err != nil {
		return models.StatsSnapshot{}, f.err
	}
	return f.report, nil
}

func (f *fakeUpstream) TriggerDetect(ctx context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ack, nil
}

func (f *fakeUpstream) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls + f.reportCalls + f.detectCalls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AnomalyEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event AnomalyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type fakeLocker struct {
	err      error
	held     bool
	released int
}

func (l *fakeLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, errLockNotObtained
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func candidate(id string, status string, hoursAgo int) upstream.Anomaly {
	return upstream.Anomaly{
		ID:          id,
		Type:        models.AnomalyTypeNodeDesync,
		Description: "node " + id + " out of sync",
		Severity:    models.AnomalySeverityHigh,
		Status:      status,
		Source:      "validator-7",
		DetectedAt:  baseTime.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

func row(externalId string, typ models.AnomalyType, severity models.AnomalySeverity, status models.AnomalyStatus, hoursAgo int) models.Anomaly {
	return models.Anomaly{
		ExternalId: externalId,
		Type:       typ,
		Severity:   severity,
		Status:     status,
		DetectedAt: baseTime.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}
