package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

// Ledger is the narrow mutation surface the coordinator drives. Status
// writes stay monotonic; only Confirm reaches the confirmed state.
type Ledger interface {
	Mark(ctx context.Context, entryIDs []string, from, to domain.EntryStatus) error
	Confirm(ctx context.Context, entryIDs []string, settlementRef string) ([]domain.ContributionEntry, error)
	Release(ctx context.Context, entryIDs []string) error
}

// Client is the external settlement backend. SubmitBatch must tolerate
// repeats of the same batch id; confirmation arrives on the event feed.
type Client interface {
	SubmitBatch(ctx context.Context, batch domain.Batch) (txRef string, err error)
	Events(ctx context.Context) (<-chan domain.SettlementEvent, error)
}

// Publisher receives operator/subscriber-visible status events.
type Publisher interface {
	Publish(ctx context.Context, event contextly.Event) error
}

type CoordinatorConfig struct {
	MaxAttempts   int
	RetryInterval time.Duration
}

// Coordinator drives ready batches through submission and applies the
// confirmation/failure outcomes. One in-flight submission per batch.
type Coordinator struct {
	client  Client
	ledger  Ledger
	batches BatchStore
	signal  Publisher
	cfg     CoordinatorConfig

	mu       sync.Mutex
	inflight map[string]bool
}

func NewCoordinator(client Client, ledger Ledger, batches BatchStore, signal Publisher, cfg CoordinatorConfig) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	return &Coordinator{
		client:   client,
		ledger:   ledger,
		batches:  batches,
		signal:   signal,
		cfg:      cfg,
		inflight: map[string]bool{},
	}
}

// Run consumes batch handoffs and settlement events until ctx is done.
func (c *Coordinator) Run(ctx context.Context, in <-chan domain.Batch) error {
	events, err := c.client.Events(ctx)
	if err != nil {
		return errors.Wrap(err, "settlement event feed unavailable")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-in:
			if !ok {
				return nil
			}
			go func() {
				if err := c.Settle(ctx, batch); err != nil {
					slog.ErrorContext(ctx, "batch settlement failed",
						slog.String("batchID", batch.ID),
						slog.String("error", err.Error()),
						slog.String("module", "settlement"),
					)
				}
			}()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.handleEvent(ctx, event)
		}
	}
}

func (c *Coordinator) begin(batchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[batchID] {
		return false
	}
	c.inflight[batchID] = true
	return true
}

func (c *Coordinator) end(batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, batchID)
}

// Settle submits a ready batch. Transient errors retry with exponential
// backoff; exhaustion releases the entries back to pending, a permanent
// error marks them failed. Re-settling a confirmed batch is a no-op.
func (c *Coordinator) Settle(ctx context.Context, batch domain.Batch) error {
	ctx, span := tracer.Start(ctx, "Settlement.Coordinator.Settle")
	defer span.End()

	if !c.begin(batch.ID) {
		return nil
	}
	defer c.end(batch.ID)

	current, err := c.batches.Get(ctx, batch.ID)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "batch lookup failed")
	}

	switch current.Status {
	case domain.BatchConfirmed, domain.BatchFailed:
		return nil
	case domain.BatchReady:
		if err := c.batches.UpdateStatus(ctx, current.ID, domain.BatchReady, domain.BatchSubmitting); err != nil {
			span.RecordError(err)
			return err
		}
		current.Status = domain.BatchSubmitting
		if err := c.ledger.Mark(ctx, current.EntryIDs, domain.EntryBatched, domain.EntrySubmitting); err != nil {
			span.RecordError(err)
			return err
		}
	case domain.BatchSubmitting:
		// recovering an interrupted submission; entries already marked
	default:
		return errors.Errorf("batch %s not settleable from status %s", current.ID, current.Status)
	}

	attempts := 0
	var txRef string
	operation := func() error {
		attempts++
		ref, err := c.client.SubmitBatch(ctx, current)
		if err != nil {
			if !domain.IsTransientSettlement(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		txRef = ref
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		c.fail(ctx, current, err)
		return err
	}

	if err := c.batches.SetSubmission(ctx, current.ID, txRef, attempts); err != nil {
		span.RecordError(err)
		return err
	}

	slog.InfoContext(ctx, "batch submitted",
		slog.String("batchID", current.ID),
		slog.String("txRef", txRef),
		slog.Int("entries", len(current.EntryIDs)),
		slog.String("module", "settlement"),
	)
	return nil
}

// fail marks the batch failed from whatever status it holds; a failure
// event can arrive while the batch is still ready. Entries of a
// transiently-exhausted batch are released back to pending for the next
// accumulator cycle; entries of a permanently-rejected batch are marked
// failed instead, so owners see the loss rather than having it silently
// retried. A failed entry gives up its fingerprint claim and is revived
// on resubmission.
func (c *Coordinator) fail(ctx context.Context, batch domain.Batch, cause error) {
	if err := c.batches.UpdateStatus(ctx, batch.ID, batch.Status, domain.BatchFailed); err != nil {
		slog.ErrorContext(ctx, "failed to mark batch failed",
			slog.String("batchID", batch.ID),
			slog.String("error", err.Error()),
			slog.String("module", "settlement"),
		)
		return
	}

	if domain.IsTransientSettlement(cause) {
		if err := c.ledger.Release(ctx, batch.EntryIDs); err != nil {
			slog.ErrorContext(ctx, "failed to release entries of failed batch",
				slog.String("batchID", batch.ID),
				slog.String("error", err.Error()),
				slog.String("module", "settlement"),
			)
		}
	} else {
		// a permanent rejection means an upstream invariant broke
		slog.ErrorContext(ctx, "ALERT: settlement rejected batch permanently",
			slog.String("batchID", batch.ID),
			slog.Int("entries", len(batch.EntryIDs)),
			slog.String("total", batch.Total.String()),
			slog.String("error", cause.Error()),
			slog.String("module", "settlement"),
		)
		entryFrom := domain.EntrySubmitting
		if batch.Status == domain.BatchReady {
			entryFrom = domain.EntryBatched
		}
		if err := c.ledger.Mark(ctx, batch.EntryIDs, entryFrom, domain.EntryFailed); err != nil {
			slog.ErrorContext(ctx, "failed to mark entries of rejected batch",
				slog.String("batchID", batch.ID),
				slog.String("error", err.Error()),
				slog.String("module", "settlement"),
			)
		}
		for _, entryID := range batch.EntryIDs {
			c.publish(ctx, contextly.Event{
				Type:      contextly.EventEntryFailed,
				EntryID:   entryID,
				BatchID:   batch.ID,
				Status:    string(domain.EntryFailed),
				Timestamp: time.Now(),
			})
		}
	}

	c.publish(ctx, contextly.Event{
		Type:      contextly.EventBatchFailed,
		BatchID:   batch.ID,
		Status:    string(domain.BatchFailed),
		Timestamp: time.Now(),
	})
}

// handleEvent applies an asynchronous confirmation or failure from the
// settlement backend. Confirmation is the only path that marks entries
// confirmed; repeats of an already-confirmed batch do not re-notify.
func (c *Coordinator) handleEvent(ctx context.Context, event domain.SettlementEvent) {
	ctx, span := tracer.Start(ctx, "Settlement.Coordinator.HandleEvent")
	defer span.End()

	batch, err := c.batches.Get(ctx, event.BatchID)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "settlement event for unknown batch",
			slog.String("batchID", event.BatchID),
			slog.String("module", "settlement"),
		)
		return
	}

	if !event.Confirmed {
		if batch.Status == domain.BatchFailed || batch.Status == domain.BatchConfirmed {
			return
		}
		c.fail(ctx, batch, domain.PermanentSettlementError(event.Reason, nil))
		return
	}

	if batch.Status == domain.BatchConfirmed {
		return
	}
	if err := c.batches.UpdateStatus(ctx, batch.ID, domain.BatchSubmitting, domain.BatchConfirmed); err != nil {
		span.RecordError(err)
		return
	}

	confirmed, err := c.ledger.Confirm(ctx, batch.EntryIDs, event.SettlementRef)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to confirm entries",
			slog.String("batchID", batch.ID),
			slog.String("error", err.Error()),
			slog.String("module", "settlement"),
		)
		return
	}

	c.publish(ctx, contextly.Event{
		Type:          contextly.EventBatchConfirmed,
		BatchID:       batch.ID,
		Status:        string(domain.BatchConfirmed),
		SettlementRef: event.SettlementRef,
		Timestamp:     time.Now(),
	})
	for _, entry := range confirmed {
		c.publish(ctx, contextly.Event{
			Type:          contextly.EventEntryConfirmed,
			Identity:      entry.Identity,
			EntryID:       entry.ID,
			BatchID:       batch.ID,
			Status:        string(domain.EntryConfirmed),
			SettlementRef: event.SettlementRef,
			Timestamp:     time.Now(),
		})
	}

	slog.InfoContext(ctx, "batch confirmed",
		slog.String("batchID", batch.ID),
		slog.String("settlementRef", event.SettlementRef),
		slog.Int("entries", len(confirmed)),
		slog.String("module", "settlement"),
	)
}

func (c *Coordinator) publish(ctx context.Context, event contextly.Event) {
	if c.signal == nil {
		return
	}
	if err := c.signal.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish settlement event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
			slog.String("module", "settlement"),
		)
	}
}
