package settlement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

// --- mocks ---

type memLedger struct {
	mu      sync.Mutex
	entries map[string]*domain.ContributionEntry
}

func newMemLedger(entries ...domain.ContributionEntry) *memLedger {
	m := &memLedger{entries: map[string]*domain.ContributionEntry{}}
	for _, entry := range entries {
		stored := entry
		m.entries[entry.ID] = &stored
	}
	return m
}

func (m *memLedger) BindToBatch(ctx context.Context, entryID, batchID string, seq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[entryID]
	if !ok {
		return domain.ErrNotFound
	}
	entry.Status = domain.EntryBatched
	entry.BatchID = &batchID
	return nil
}

func (m *memLedger) ListPending(ctx context.Context, limit int) ([]domain.ContributionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []domain.ContributionEntry
	for _, entry := range m.entries {
		if entry.Status == domain.EntryPending {
			pending = append(pending, *entry)
		}
	}
	return pending, nil
}

func (m *memLedger) ReleaseBatch(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.BatchID != nil && *entry.BatchID == batchID && entry.Status == domain.EntryBatched {
			entry.Status = domain.EntryPending
			entry.BatchID = nil
		}
	}
	return nil
}

func (m *memLedger) Mark(ctx context.Context, entryIDs []string, from, to domain.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range entryIDs {
		if entry, ok := m.entries[id]; ok && entry.Status == from {
			entry.Status = to
		}
	}
	return nil
}

func (m *memLedger) Confirm(ctx context.Context, entryIDs []string, ref string) ([]domain.ContributionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var confirmed []domain.ContributionEntry
	for _, id := range entryIDs {
		if entry, ok := m.entries[id]; ok {
			entry.Status = domain.EntryConfirmed
			entry.SettlementRef = &ref
			confirmed = append(confirmed, *entry)
		}
	}
	return confirmed, nil
}

func (m *memLedger) Release(ctx context.Context, entryIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range entryIDs {
		if entry, ok := m.entries[id]; ok {
			entry.Status = domain.EntryPending
			entry.BatchID = nil
		}
	}
	return nil
}

func (m *memLedger) status(entryID string) domain.EntryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[entryID].Status
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type memBatchStore struct {
	mu      sync.Mutex
	batches map[string]*domain.Batch
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{batches: map[string]*domain.Batch{}}
}

func (m *memBatchStore) Create(ctx context.Context, batch domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := batch
	m.batches[batch.ID] = &stored
	return nil
}

func (m *memBatchStore) Get(ctx context.Context, batchID string) (domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	return *batch, nil
}

func (m *memBatchStore) Seal(ctx context.Context, batch domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.batches[batch.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.BatchAccumulating {
		return fmt.Errorf("batch %s is not accumulating", batch.ID)
	}
	stored.EntryIDs = batch.EntryIDs
	stored.Total = batch.Total
	stored.Status = domain.BatchReady
	return nil
}

func (m *memBatchStore) UpdateStatus(ctx context.Context, batchID string, from, to domain.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	if batch.Status != from {
		return fmt.Errorf("batch %s is %s, not %s", batchID, batch.Status, from)
	}
	batch.Status = to
	return nil
}

func (m *memBatchStore) SetSubmission(ctx context.Context, batchID, txRef string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	batch.TxRef = &txRef
	batch.AttemptCount = attempts
	return nil
}

func (m *memBatchStore) ListUnsettled(ctx context.Context) ([]domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unsettled []domain.Batch
	for _, batch := range m.batches {
		if batch.Status == domain.BatchReady || batch.Status == domain.BatchSubmitting {
			unsettled = append(unsettled, *batch)
		}
	}
	return unsettled, nil
}

func (m *memBatchStore) ListAccumulating(ctx context.Context) ([]domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []domain.Batch
	for _, batch := range m.batches {
		if batch.Status == domain.BatchAccumulating {
			open = append(open, *batch)
		}
	}
	return open, nil
}

func (m *memBatchStore) status(batchID string) domain.BatchStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[batchID].Status
}

func pendingEntry(id string, reward contextly.Amount) domain.ContributionEntry {
	return domain.ContributionEntry{
		ID:                 id,
		Identity:           "0xabc",
		ContentFingerprint: "fp-" + id,
		Type:               contextly.TypeConversation,
		Reward:             reward,
		Status:             domain.EntryPending,
		CreatedAt:          time.Now(),
	}
}

// --- tests ---

func TestAccumulatorClosesOnSize(t *testing.T) {
	e1, e2, e3 := pendingEntry("e1", 1000), pendingEntry("e2", 1500), pendingEntry("e3", 2000)
	ledger := newMemLedger(e1, e2, e3)
	store := newMemBatchStore()

	acc := NewAccumulator(ledger, store, AccumulatorConfig{MaxBatchSize: 3, MaxInterval: time.Hour})

	for _, entry := range []domain.ContributionEntry{e1, e2, e3} {
		if err := acc.Append(context.Background(), entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	select {
	case batch := <-acc.Batches():
		if len(batch.EntryIDs) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(batch.EntryIDs))
		}
		// submission order preserved
		if batch.EntryIDs[0] != "e1" || batch.EntryIDs[1] != "e2" || batch.EntryIDs[2] != "e3" {
			t.Fatalf("order not preserved: %v", batch.EntryIDs)
		}
		if batch.Total != 4500 {
			t.Fatalf("expected total 4500, got %d", batch.Total)
		}
		if batch.Status != domain.BatchReady {
			t.Fatalf("expected ready, got %s", batch.Status)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a closed batch")
	}

	for _, id := range []string{"e1", "e2", "e3"} {
		if ledger.status(id) != domain.EntryBatched {
			t.Fatalf("entry %s not batched", id)
		}
	}
}

func TestAccumulatorClosesOnInterval(t *testing.T) {
	e1 := pendingEntry("e1", 1000)
	ledger := newMemLedger(e1)
	store := newMemBatchStore()

	acc := NewAccumulator(ledger, store, AccumulatorConfig{MaxBatchSize: 100, MaxInterval: time.Minute})

	if err := acc.Append(context.Background(), e1); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	acc.sweep(context.Background(), time.Now().Add(2*time.Minute))

	select {
	case batch := <-acc.Batches():
		if len(batch.EntryIDs) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(batch.EntryIDs))
		}
	case <-time.After(time.Second):
		t.Fatalf("expected interval close")
	}
}

func TestAccumulatorDefersSmallBatchOnce(t *testing.T) {
	e1 := pendingEntry("e1", 500)
	ledger := newMemLedger(e1)
	store := newMemBatchStore()

	acc := NewAccumulator(ledger, store, AccumulatorConfig{
		MaxBatchSize:  100,
		MaxInterval:   time.Minute,
		MinSettlement: 10000,
	})

	if err := acc.Append(context.Background(), e1); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// first due sweep defers, the batch stays open
	acc.sweep(context.Background(), time.Now().Add(2*time.Minute))
	select {
	case <-acc.Batches():
		t.Fatalf("below-minimum batch must defer once")
	default:
	}

	// second due sweep closes even below the minimum
	acc.sweep(context.Background(), time.Now().Add(4*time.Minute))
	select {
	case batch := <-acc.Batches():
		if batch.Total != 500 {
			t.Fatalf("expected total 500, got %d", batch.Total)
		}
	case <-time.After(time.Second):
		t.Fatalf("deferred batch must close on the next due sweep")
	}
}

func TestAccumulatorEmptySweepIsQuiet(t *testing.T) {
	acc := NewAccumulator(newMemLedger(), newMemBatchStore(), AccumulatorConfig{MaxInterval: time.Minute})

	acc.sweep(context.Background(), time.Now().Add(time.Hour))
	select {
	case <-acc.Batches():
		t.Fatalf("no batch expected from an empty sweep")
	default:
	}
}

func TestAccumulatorPersistsOpenBatch(t *testing.T) {
	e1 := pendingEntry("e1", 1000)
	ledger := newMemLedger(e1)
	store := newMemBatchStore()

	acc := NewAccumulator(ledger, store, AccumulatorConfig{MaxBatchSize: 100, MaxInterval: time.Hour})
	if err := acc.Append(context.Background(), e1); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	open, err := store.ListAccumulating(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("the open batch must be persisted as accumulating, got %d", len(open))
	}
}

func TestAccumulatorRecoverReleasesStaleOpenBatch(t *testing.T) {
	e1 := pendingEntry("e1", 1000)
	ledger := newMemLedger(e1)
	store := newMemBatchStore()

	// a previous process opened a batch, bound e1, and died before sealing
	stale := domain.Batch{ID: "stale", Status: domain.BatchAccumulating, OpenedAt: time.Now()}
	if err := store.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed batch failed: %v", err)
	}
	if err := ledger.BindToBatch(context.Background(), "e1", "stale", 0); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	acc := NewAccumulator(ledger, store, AccumulatorConfig{MaxBatchSize: 1, MaxInterval: time.Hour})
	if err := acc.Recover(context.Background()); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	if store.status("stale") != domain.BatchFailed {
		t.Fatalf("stale open batch must be closed out, got %s", store.status("stale"))
	}
	select {
	case batch := <-acc.Batches():
		if len(batch.EntryIDs) != 1 || batch.EntryIDs[0] != "e1" {
			t.Fatalf("expected e1 re-batched, got %v", batch.EntryIDs)
		}
		if batch.ID == "stale" {
			t.Fatalf("entry must move to a fresh batch")
		}
	case <-time.After(time.Second):
		t.Fatalf("entry stranded in a dead batch must be re-batched")
	}
	if ledger.status("e1") != domain.EntryBatched {
		t.Fatalf("expected batched, got %s", ledger.status("e1"))
	}
}

func TestAccumulatorRecover(t *testing.T) {
	stranded := pendingEntry("stranded", 1000)
	ledger := newMemLedger(stranded)
	store := newMemBatchStore()

	orphan := domain.Batch{ID: "orphan", EntryIDs: []string{"x"}, Status: domain.BatchReady, OpenedAt: time.Now()}
	if err := store.Create(context.Background(), orphan); err != nil {
		t.Fatalf("seed batch failed: %v", err)
	}

	acc := NewAccumulator(ledger, store, AccumulatorConfig{MaxBatchSize: 1, MaxInterval: time.Hour})
	if err := acc.Recover(context.Background()); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case batch := <-acc.Batches():
			got[batch.ID] = true
		case <-time.After(time.Second):
			t.Fatalf("expected two recovered batches, got %v", got)
		}
	}
	if !got["orphan"] {
		t.Fatalf("unsettled batch must be re-handed to the coordinator")
	}
	if ledger.status("stranded") != domain.EntryBatched {
		t.Fatalf("stranded pending entry must be re-batched")
	}
}
