package repository

import (
	"context"
	"encoding/json"

	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/infrastructure/database/models"
)

// earnings sums are read-path only; a short shared cache keeps the
// aggregate query off the hot path without affecting settlement.
const earningsCacheSeconds = 30

type EarningsRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewEarningsRepository(db *gorm.DB, mc *memcache.Client) *EarningsRepository {
	return &EarningsRepository{db: db, mc: mc}
}

type earningsRow struct {
	ContributionType string
	Status           string
	Total            int64
	Count            int64
}

func (r *EarningsRepository) Totals(ctx context.Context, identity string) (domain.EarningsView, error) {
	cacheKey := "earnings:" + identity

	if r.mc != nil {
		if item, err := r.mc.Get(cacheKey); err == nil {
			var cached domain.EarningsView
			if err := json.Unmarshal(item.Value, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var rows []earningsRow
	err := r.db.WithContext(ctx).
		Model(&models.ContributionEntry{}).
		Select("contribution_type, status, SUM(reward_milli) AS total, COUNT(*) AS count").
		Where("identity = ?", identity).
		Group("contribution_type, status").
		Scan(&rows).Error
	if err != nil {
		return domain.EarningsView{}, err
	}

	view := domain.EarningsView{
		Identity: identity,
		ByType:   map[contextly.ContributionType]contextly.Amount{},
		Counts:   map[domain.EntryStatus]int64{},
	}

	for _, row := range rows {
		status := domain.EntryStatus(row.Status)
		view.Counts[status] += row.Count

		switch status {
		case domain.EntryConfirmed:
			view.Confirmed += contextly.Amount(row.Total)
		case domain.EntryPending, domain.EntryBatched, domain.EntrySubmitting:
			view.Provisional += contextly.Amount(row.Total)
		default:
			continue
		}
		view.ByType[contextly.ContributionType(row.ContributionType)] += contextly.Amount(row.Total)
	}
	view.Lifetime = view.Confirmed

	if r.mc != nil {
		if serialized, err := json.Marshal(view); err == nil {
			r.mc.Set(&memcache.Item{
				Key:        cacheKey,
				Value:      serialized,
				Expiration: earningsCacheSeconds,
			})
		}
	}

	return view, nil
}
