package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/infrastructure/database/models"
)

type ContributionRepository struct {
	db *gorm.DB
}

func NewContributionRepository(db *gorm.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

func entryToModel(e domain.ContributionEntry) models.ContributionEntry {
	return models.ContributionEntry{
		ID:                 e.ID,
		SessionID:          e.SessionID,
		Identity:           e.Identity,
		ContentFingerprint: e.ContentFingerprint,
		ContributionType:   string(e.Type),
		Platform:           e.Platform,
		QualityScore:       e.QualityScore,
		RewardMilli:        int64(e.Reward),
		Status:             string(e.Status),
		BatchID:            e.BatchID,
		SettlementRef:      e.SettlementRef,
	}
}

func entryFromModel(m models.ContributionEntry) domain.ContributionEntry {
	return domain.ContributionEntry{
		ID:                 m.ID,
		SessionID:          m.SessionID,
		Identity:           m.Identity,
		ContentFingerprint: m.ContentFingerprint,
		Type:               contextly.ContributionType(m.ContributionType),
		Platform:           m.Platform,
		QualityScore:       m.QualityScore,
		Reward:             contextly.Amount(m.RewardMilli),
		Status:             domain.EntryStatus(m.Status),
		BatchID:            m.BatchID,
		SettlementRef:      m.SettlementRef,
		CreatedAt:          m.CDate,
	}
}

// InsertIfAbsent creates the entry unless its fingerprint is already
// claimed. The unique index on content_fingerprint is the single
// serialization point for duplicate submissions.
func (r *ContributionRepository) InsertIfAbsent(ctx context.Context, entry domain.ContributionEntry) (domain.ContributionEntry, bool, error) {
	model := entryToModel(entry)

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_fingerprint"}},
		DoNothing: true,
	}).Create(&model)
	if result.Error != nil {
		return domain.ContributionEntry{}, false, result.Error
	}

	if result.RowsAffected > 0 {
		return entryFromModel(model), true, nil
	}

	var existing models.ContributionEntry
	err := r.db.WithContext(ctx).
		Where("content_fingerprint = ?", entry.ContentFingerprint).
		Take(&existing).Error
	if err != nil {
		return domain.ContributionEntry{}, false, err
	}
	return entryFromModel(existing), false, nil
}

func (r *ContributionRepository) Get(ctx context.Context, entryID string) (domain.ContributionEntry, error) {
	var model models.ContributionEntry
	err := r.db.WithContext(ctx).First(&model, "id = ?", entryID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ContributionEntry{}, domain.ErrNotFound
		}
		return domain.ContributionEntry{}, err
	}
	return entryFromModel(model), nil
}

// Revive returns a failed entry to pending so the fingerprint claim it
// gave up is re-established by the same row instead of a duplicate.
func (r *ContributionRepository) Revive(ctx context.Context, entryID string) (domain.ContributionEntry, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ContributionEntry{}).
		Where("id = ? AND status = ?", entryID, string(domain.EntryFailed)).
		Updates(map[string]any{
			"status":         string(domain.EntryPending),
			"batch_id":       nil,
			"batch_seq":      0,
			"settlement_ref": nil,
		})
	if result.Error != nil {
		return domain.ContributionEntry{}, result.Error
	}

	return r.Get(ctx, entryID)
}

func (r *ContributionRepository) BindToBatch(ctx context.Context, entryID, batchID string, seq int) error {
	result := r.db.WithContext(ctx).
		Model(&models.ContributionEntry{}).
		Where("id = ? AND status = ?", entryID, string(domain.EntryPending)).
		Updates(map[string]any{
			"status":    string(domain.EntryBatched),
			"batch_id":  batchID,
			"batch_seq": seq,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("entry %s is not pending", entryID)
	}
	return nil
}

// UpdateStatus advances only rows still in the expected source status,
// which keeps repeated calls harmless.
func (r *ContributionRepository) UpdateStatus(ctx context.Context, entryIDs []string, from, to domain.EntryStatus) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.ContributionEntry{}).
		Where("id IN ? AND status = ?", entryIDs, string(from)).
		Update("status", string(to)).Error
}

func (r *ContributionRepository) ConfirmEntries(ctx context.Context, entryIDs []string, settlementRef string) ([]domain.ContributionEntry, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}

	var confirmed []domain.ContributionEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.ContributionEntry{}).
			Where("id IN ? AND status = ?", entryIDs, string(domain.EntrySubmitting)).
			Updates(map[string]any{
				"status":         string(domain.EntryConfirmed),
				"settlement_ref": settlementRef,
			}).Error
		if err != nil {
			return err
		}

		var rows []models.ContributionEntry
		err = tx.Where("id IN ? AND status = ?", entryIDs, string(domain.EntryConfirmed)).
			Order("batch_seq ASC").
			Find(&rows).Error
		if err != nil {
			return err
		}

		for _, row := range rows {
			confirmed = append(confirmed, entryFromModel(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

func (r *ContributionRepository) ReleaseEntries(ctx context.Context, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.ContributionEntry{}).
		Where("id IN ? AND status IN ?", entryIDs, []string{
			string(domain.EntryBatched),
			string(domain.EntrySubmitting),
		}).
		Updates(map[string]any{
			"status":    string(domain.EntryPending),
			"batch_id":  nil,
			"batch_seq": 0,
		}).Error
}

// ReleaseBatch returns every batched entry bound to batchID to pending.
// Used when a batch that never reached settlement is torn down.
func (r *ContributionRepository) ReleaseBatch(ctx context.Context, batchID string) error {
	return r.db.WithContext(ctx).
		Model(&models.ContributionEntry{}).
		Where("batch_id = ? AND status = ?", batchID, string(domain.EntryBatched)).
		Updates(map[string]any{
			"status":    string(domain.EntryPending),
			"batch_id":  nil,
			"batch_seq": 0,
		}).Error
}

func (r *ContributionRepository) ListPending(ctx context.Context, limit int) ([]domain.ContributionEntry, error) {
	var rows []models.ContributionEntry
	query := r.db.WithContext(ctx).
		Where("status = ?", string(domain.EntryPending)).
		Order("c_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]domain.ContributionEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromModel(row))
	}
	return entries, nil
}
