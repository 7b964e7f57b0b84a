package anomalysync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/upstream"
)

func TestReconcile_IdempotentAcrossPasses(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, nil, quietLogger())
	batch := []upstream.Anomaly{
		candidate("A1", "detected", 1),
		candidate("A2", "resolved", 2),
		candidate("A3", "investigating", 3),
	}

	first, err := r.Reconcile(context.Background(), batch)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if first.Inserted != 3 || first.Existing != 0 {
		t.Fatalf("first pass: got %+v", first)
	}

	second, err := r.Reconcile(context.Background(), batch)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.Inserted != 0 || second.Existing != 3 {
		t.Fatalf("second pass: got %+v", second)
	}

	rows, _ := store.List(context.Background())
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows after two passes, got %d", len(rows))
	}
}

func TestReconcile_RepeatedIdsWithinOneBatch(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, nil, quietLogger())
	batch := []upstream.Anomaly{
		candidate("X", "detected", 1),
		candidate("X", "resolved", 1),
		candidate("Y", "detected", 2),
		candidate("X", "detected", 1),
	}

	result, err := r.Reconcile(context.Background(), batch)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Inserted != 2 || result.Existing != 2 {
		t.Fatalf("got %+v, want 2 inserted 2 existing", result)
	}
	rows, _ := store.List(context.Background())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// first sight wins
	got, _ := store.GetByExternalId(context.Background(), "X")
	if got.Status != models.AnomalyStatusDetected {
		t.Fatalf("expected first-seen status detected, got %s", got.Status)
	}
}

func TestReconcile_NeverClobbersLocalResolution(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewReconciler(store, nil, quietLogger())

	if _, err := r.Reconcile(ctx, []upstream.Anomaly{candidate("X", "detected", 1)}); err != nil {
		t.Fatalf("seed reconcile: %v", err)
	}
	local, _ := store.GetByExternalId(ctx, "X")
	if _, err := store.Resolve(ctx, local.ID, "restarted validator", baseTime); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stale := candidate("X", "detected", 1)
	stale.Description = "rewritten upstream"
	stale.Severity = models.AnomalySeverityCritical
	if _, err := r.Reconcile(ctx, []upstream.Anomaly{stale}); err != nil {
		t.Fatalf("reconcile stale: %v", err)
	}

	after, _ := store.GetById(ctx, local.ID)
	if after.Status != models.AnomalyStatusResolved {
		t.Fatalf("local resolution clobbered: status=%s", after.Status)
	}
	if after.Resolution == nil || *after.Resolution != "restarted validator" {
		t.Fatalf("resolution text changed: %v", after.Resolution)
	}
	if after.Severity != models.AnomalySeverityHigh || after.Description == "rewritten upstream" {
		t.Fatalf("upstream fields overwrote existing row: %+v", after)
	}
}

func TestReconcile_StatusMapping(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewReconciler(store, nil, quietLogger())

	batch := []upstream.Anomaly{
		candidate("resolved-up", "resolved", 1),
		candidate("investigating-up", "investigating", 2),
		candidate("ignored-up", "ignored", 3),
		candidate("blank-up", "", 4),
	}
	if _, err := r.Reconcile(ctx, batch); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	cases := map[string]models.AnomalyStatus{
		"resolved-up":      models.AnomalyStatusResolved,
		"investigating-up": models.AnomalyStatusDetected,
		"ignored-up":       models.AnomalyStatusDetected,
		"blank-up":         models.AnomalyStatusDetected,
	}
	for externalId, want := range cases {
		got, _ := store.GetByExternalId(ctx, externalId)
		if got == nil {
			t.Fatalf("%s not stored", externalId)
		}
		if got.Status != want {
			t.Fatalf("%s: status=%s want %s", externalId, got.Status, want)
		}
	}
}

func TestReconcile_FirstIngestLeavesResolutionAbsent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewReconciler(store, nil, quietLogger())

	c := candidate("R", "resolved", 1)
	resolvedAt := baseTime
	c.ResolvedAt = &resolvedAt
	c.Resolution = "fixed upstream"
	c.Metadata = models.Metadata(`{"node":"n-3"}`)
	if _, err := r.Reconcile(ctx, []upstream.Anomaly{c}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, _ := store.GetByExternalId(ctx, "R")
	if got.ResolvedAt != nil || got.Resolution != nil {
		t.Fatalf("expected resolvedAt/resolution absent, got %v / %v", got.ResolvedAt, got.Resolution)
	}
	if got.BlockchainTxHash != nil {
		t.Fatalf("expected blockchain tx hash absent")
	}
	if string(got.Metadata) != `{"node":"n-3"}` {
		t.Fatalf("metadata not copied: %s", got.Metadata)
	}
	if got.Source != "validator-7" || !got.DetectedAt.Equal(c.DetectedAt) {
		t.Fatalf("fields not mapped 1:1: %+v", got)
	}
}

func TestReconcile_DuplicateKeyOnInsertIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(row("X", models.AnomalyTypeNodeDesync, models.AnomalySeverityLow, models.AnomalyStatusResolved, 1))
	store.skipLookup = true

	r := NewReconciler(store, nil, quietLogger())
	result, err := r.Reconcile(ctx, []upstream.Anomaly{candidate("X", "detected", 1)})
	if err != nil {
		t.Fatalf("duplicate key should be swallowed, got %v", err)
	}
	if result.Existing != 1 || result.Inserted != 0 {
		t.Fatalf("got %+v", result)
	}
}

func TestReconcile_ConcurrentPassesInsertOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.skipLookup = true
	r := NewReconciler(store, nil, quietLogger())
	batch := []upstream.Anomaly{candidate("A", "detected", 1), candidate("B", "detected", 2)}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Reconcile(ctx, batch); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent reconcile: %v", err)
	}
	if store.creates != 2 {
		t.Fatalf("expected 2 inserts, got %d", store.creates)
	}
}

func TestReconcile_StoreFailureIsReturned(t *testing.T) {
	store := newMemStore()
	store.failWith = models.ErrStoreNotConfigured
	r := NewReconciler(store, nil, quietLogger())

	_, err := r.Reconcile(context.Background(), []upstream.Anomaly{candidate("A", "detected", 1)})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestReconcile_SkipsInvalidCandidates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewReconciler(store, nil, quietLogger())

	noId := candidate("", "detected", 1)
	badType := candidate("bad-type", "detected", 1)
	badType.Type = "meteor_strike"
	badSeverity := candidate("bad-sev", "detected", 1)
	badSeverity.Severity = "apocalyptic"
	noTime := candidate("no-time", "detected", 1)
	noTime.DetectedAt = time.Time{}

	result, err := r.Reconcile(ctx, []upstream.Anomaly{noId, badType, badSeverity, noTime, candidate("ok", "detected", 1)})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Invalid != 4 || result.Inserted != 1 {
		t.Fatalf("got %+v, want 4 invalid 1 inserted", result)
	}
	rows, _ := store.List(ctx)
	if len(rows) != 1 || rows[0].ExternalId != "ok" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReconcile_PublishesIngestedOnlyForInserts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{err: errors.New("topic gone")}
	r := NewReconciler(store, pub, quietLogger())

	batch := []upstream.Anomaly{candidate("A", "detected", 1), candidate("A", "detected", 1)}
	if _, err := r.Reconcile(ctx, batch); err != nil {
		t.Fatalf("publish failure must not fail reconcile: %v", err)
	}
	if _, err := r.Reconcile(ctx, batch); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	actions := pub.actions()
	if len(actions) != 1 || actions[0] != EventIngested {
		t.Fatalf("expected a single ingested event, got %v", actions)
	}
	if pub.events[0].ExternalId != "A" || pub.events[0].AnomalyId == 0 {
		t.Fatalf("event missing ids: %+v", pub.events[0])
	}
}
