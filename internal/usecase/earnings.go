package usecase

import (
	"context"

	"github.com/contextly/contextly-ledger/internal/domain"
)

// EarningsUsecase is a read-only aggregation over the ledger. It must
// never drive settlement decisions; only confirmed sums are real.
type EarningsUsecase struct {
	earnings EarningsRepository
}

func NewEarningsUsecase(earnings EarningsRepository) *EarningsUsecase {
	return &EarningsUsecase{earnings: earnings}
}

func (uc *EarningsUsecase) Totals(ctx context.Context, identity string) (domain.EarningsView, error) {
	ctx, span := tracer.Start(ctx, "Earnings.Usecase.Totals")
	defer span.End()

	return uc.earnings.Totals(ctx, identity)
}
