package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/infrastructure/database/models"
)

type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func identityFromModel(m models.Identity) domain.Identity {
	return domain.Identity{
		Address:         m.Address,
		LinkedHandle:    m.LinkedHandle,
		RegisteredAt:    m.CDate,
		ReputationScore: m.ReputationScore,
		Active:          m.Active,
	}
}

// Upsert registers the address on first contact and is a no-op on every
// later one. Existing reputation and handle are never overwritten here.
func (r *IdentityRepository) Upsert(ctx context.Context, address string) (domain.Identity, error) {
	identity := models.Identity{
		Address: address,
		Active:  true,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&identity).Error
	if err != nil {
		return domain.Identity{}, err
	}

	return r.Get(ctx, address)
}

func (r *IdentityRepository) Get(ctx context.Context, address string) (domain.Identity, error) {
	var identity models.Identity
	err := r.db.WithContext(ctx).First(&identity, "address = ?", address).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Identity{}, domain.ErrNotFound
		}
		return domain.Identity{}, err
	}
	return identityFromModel(identity), nil
}

func (r *IdentityRepository) AddReputation(ctx context.Context, address string, delta float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Identity{}).
		Where("address = ?", address).
		UpdateColumn("reputation_score", gorm.Expr("reputation_score + ?", delta)).Error
}

func (r *IdentityRepository) LinkHandle(ctx context.Context, address string, handle string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Identity{}).
		Where("address = ?", address).
		Update("linked_handle", handle)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
