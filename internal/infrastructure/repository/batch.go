package repository

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/infrastructure/database/models"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func batchFromModel(m models.Batch) domain.Batch {
	return domain.Batch{
		ID:           m.ID,
		EntryIDs:     m.EntryIDs,
		Total:        contextly.Amount(m.TotalMilli),
		Status:       domain.BatchStatus(m.Status),
		AttemptCount: m.AttemptCount,
		TxRef:        m.TxRef,
		OpenedAt:     m.OpenedAt,
	}
}

func (r *BatchRepository) Create(ctx context.Context, batch domain.Batch) error {
	model := models.Batch{
		ID:         batch.ID,
		EntryIDs:   batch.EntryIDs,
		TotalMilli: int64(batch.Total),
		Status:     string(batch.Status),
		OpenedAt:   batch.OpenedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *BatchRepository) Get(ctx context.Context, batchID string) (domain.Batch, error) {
	var model models.Batch
	err := r.db.WithContext(ctx).First(&model, "id = ?", batchID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Batch{}, domain.ErrNotFound
		}
		return domain.Batch{}, err
	}
	return batchFromModel(model), nil
}

// Seal fills in the final entry list and total and advances the batch
// from accumulating to ready. A missing or already-sealed row errors so
// the accumulator keeps the batch open and retries.
func (r *BatchRepository) Seal(ctx context.Context, batch domain.Batch) error {
	result := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND status = ?", batch.ID, string(domain.BatchAccumulating)).
		Updates(map[string]any{
			"entry_ids":   pq.StringArray(batch.EntryIDs),
			"total_milli": int64(batch.Total),
			"status":      string(domain.BatchReady),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("batch %s is not accumulating", batch.ID)
	}
	return nil
}

// UpdateStatus is a compare-and-swap on the batch status; a stale source
// status means another actor already advanced the batch.
func (r *BatchRepository) UpdateStatus(ctx context.Context, batchID string, from, to domain.BatchStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND status = ?", batchID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("batch %s is not %s", batchID, from)
	}
	return nil
}

func (r *BatchRepository) SetSubmission(ctx context.Context, batchID, txRef string, attempts int) error {
	return r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ?", batchID).
		Updates(map[string]any{
			"tx_ref":        txRef,
			"attempt_count": attempts,
		}).Error
}

func (r *BatchRepository) ListUnsettled(ctx context.Context) ([]domain.Batch, error) {
	return r.listByStatus(ctx, domain.BatchReady, domain.BatchSubmitting)
}

// ListAccumulating returns open batches left behind by a previous
// process; a live accumulator holds at most one.
func (r *BatchRepository) ListAccumulating(ctx context.Context) ([]domain.Batch, error) {
	return r.listByStatus(ctx, domain.BatchAccumulating)
}

func (r *BatchRepository) listByStatus(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.Batch, error) {
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}

	var rows []models.Batch
	err := r.db.WithContext(ctx).
		Where("status IN ?", names).
		Order("opened_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(rows))
	for _, row := range rows {
		batches = append(batches, batchFromModel(row))
	}
	return batches, nil
}
