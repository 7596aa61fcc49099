package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

var tracer = otel.Tracer("settlement")

// EntryBinder is the narrow ledger surface the accumulator needs:
// binding a pending entry to the open batch advances it to batched.
type EntryBinder interface {
	BindToBatch(ctx context.Context, entryID, batchID string, seq int) error
	ReleaseBatch(ctx context.Context, batchID string) error
	ListPending(ctx context.Context, limit int) ([]domain.ContributionEntry, error)
}

// BatchStore persists batch lifecycle state.
type BatchStore interface {
	Create(ctx context.Context, batch domain.Batch) error
	Get(ctx context.Context, batchID string) (domain.Batch, error)
	Seal(ctx context.Context, batch domain.Batch) error
	UpdateStatus(ctx context.Context, batchID string, from, to domain.BatchStatus) error
	SetSubmission(ctx context.Context, batchID, txRef string, attempts int) error
	ListUnsettled(ctx context.Context) ([]domain.Batch, error)
	ListAccumulating(ctx context.Context) ([]domain.Batch, error)
}

type AccumulatorConfig struct {
	MaxBatchSize  int
	MaxInterval   time.Duration
	MinSettlement contextly.Amount
}

// Accumulator maintains exactly one open batch. Appends are serialized by
// a single mutex; closed batches are handed to the coordinator over a
// channel so accumulation never blocks on settlement I/O.
type Accumulator struct {
	mu      sync.Mutex
	entries EntryBinder
	batches BatchStore
	cfg     AccumulatorConfig
	out     chan domain.Batch
	open    *openBatch
}

type openBatch struct {
	id       string
	entryIDs []string
	total    contextly.Amount
	openedAt time.Time
	deferred bool
}

func NewAccumulator(entries EntryBinder, batches BatchStore, cfg AccumulatorConfig) *Accumulator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Minute
	}
	return &Accumulator{
		entries: entries,
		batches: batches,
		cfg:     cfg,
		out:     make(chan domain.Batch, 16),
	}
}

// Batches is the handoff channel consumed by the coordinator.
func (a *Accumulator) Batches() <-chan domain.Batch {
	return a.out
}

// Append binds a pending entry to the open batch, preserving submission
// order. Closing on size happens inside the same critical section so the
// count and total stay consistent. The open batch is persisted as
// accumulating the moment it opens, so a crash before close leaves a row
// that Recover can find and release.
func (a *Accumulator) Append(ctx context.Context, entry domain.ContributionEntry) error {
	ctx, span := tracer.Start(ctx, "Settlement.Accumulator.Append")
	defer span.End()

	a.mu.Lock()
	if a.open == nil {
		open := &openBatch{
			id:       uuid.NewString(),
			openedAt: time.Now(),
		}
		err := a.batches.Create(ctx, domain.Batch{
			ID:       open.id,
			Status:   domain.BatchAccumulating,
			OpenedAt: open.openedAt,
		})
		if err != nil {
			a.mu.Unlock()
			span.RecordError(err)
			return errors.Wrap(err, "open batch write failed")
		}
		a.open = open
	}

	seq := len(a.open.entryIDs)
	if err := a.entries.BindToBatch(ctx, entry.ID, a.open.id, seq); err != nil {
		a.mu.Unlock()
		span.RecordError(err)
		return errors.Wrap(err, "bind to batch failed")
	}

	a.open.entryIDs = append(a.open.entryIDs, entry.ID)
	a.open.total += entry.Reward

	var closed *domain.Batch
	if len(a.open.entryIDs) >= a.cfg.MaxBatchSize {
		closed = a.closeLocked(ctx)
	}
	a.mu.Unlock()

	a.handoff(ctx, closed)
	return nil
}

// closeLocked seals the open batch as ready and opens a fresh one.
// Caller holds the mutex.
func (a *Accumulator) closeLocked(ctx context.Context) *domain.Batch {
	if a.open == nil || len(a.open.entryIDs) == 0 {
		return nil
	}

	batch := domain.Batch{
		ID:       a.open.id,
		EntryIDs: a.open.entryIDs,
		Total:    a.open.total,
		Status:   domain.BatchReady,
		OpenedAt: a.open.openedAt,
	}

	if err := a.batches.Seal(ctx, batch); err != nil {
		// keep accumulating; the next close attempt retries the write
		slog.ErrorContext(ctx, "failed to seal ready batch",
			slog.String("batchID", batch.ID),
			slog.String("error", err.Error()),
			slog.String("module", "settlement"),
		)
		return nil
	}

	a.open = nil
	return &batch
}

func (a *Accumulator) handoff(ctx context.Context, batch *domain.Batch) {
	if batch == nil {
		return
	}
	select {
	case a.out <- *batch:
	case <-ctx.Done():
	}
}

// sweep closes the open batch once it has aged past the interval. A
// below-minimum batch may defer exactly once to bound settlement latency.
func (a *Accumulator) sweep(ctx context.Context, now time.Time) {
	a.mu.Lock()
	var closed *domain.Batch
	if a.open != nil && len(a.open.entryIDs) > 0 && now.Sub(a.open.openedAt) >= a.cfg.MaxInterval {
		if a.open.total < a.cfg.MinSettlement && !a.open.deferred {
			a.open.deferred = true
			a.open.openedAt = now
		} else {
			closed = a.closeLocked(ctx)
		}
	}
	a.mu.Unlock()

	a.handoff(ctx, closed)
}

// Run drives the interval timer until ctx is done. Once per interval it
// also re-queues pending entries that arrived outside Append, such as
// entries a failed settlement released, so the next accumulator cycle
// re-batches them.
func (a *Accumulator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	requeue := time.NewTicker(a.cfg.MaxInterval)
	defer requeue.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.sweep(ctx, now)
		case <-requeue.C:
			a.requeuePending(ctx)
		}
	}
}

// requeuePending appends pending entries sitting in the store back into
// accumulation. BindToBatch only advances rows still pending, so racing
// a concurrent submission is harmless.
func (a *Accumulator) requeuePending(ctx context.Context) {
	pending, err := a.entries.ListPending(ctx, a.cfg.MaxBatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list pending entries",
			slog.String("error", err.Error()),
			slog.String("module", "settlement"),
		)
		return
	}
	for _, entry := range pending {
		if err := a.Append(ctx, entry); err != nil {
			slog.ErrorContext(ctx, "failed to re-queue pending entry",
				slog.String("entryID", entry.ID),
				slog.String("error", err.Error()),
				slog.String("module", "settlement"),
			)
		}
	}
}

// Recover re-queues work stranded by a previous process: accumulating
// batches that never closed give their entries back to pending, unsettled
// batches go back to the coordinator, and pending entries re-enter
// accumulation. Fingerprint identity makes all of it safe to repeat.
func (a *Accumulator) Recover(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Settlement.Accumulator.Recover")
	defer span.End()

	stale, err := a.batches.ListAccumulating(ctx)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "listing accumulating batches failed")
	}
	for _, batch := range stale {
		if err := a.entries.ReleaseBatch(ctx, batch.ID); err != nil {
			span.RecordError(err)
			return errors.Wrapf(err, "releasing entries of stale batch %s failed", batch.ID)
		}
		if err := a.batches.UpdateStatus(ctx, batch.ID, domain.BatchAccumulating, domain.BatchFailed); err != nil {
			span.RecordError(err)
			return errors.Wrapf(err, "closing stale batch %s failed", batch.ID)
		}
	}

	unsettled, err := a.batches.ListUnsettled(ctx)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "listing unsettled batches failed")
	}
	for _, batch := range unsettled {
		a.handoff(ctx, &batch)
	}

	a.requeuePending(ctx)
	return nil
}
