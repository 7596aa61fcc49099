package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/policy"
)

// reputation nudge applied per confirmed entry
const confirmedReputationDelta = 0.1

type ContributionUsecase struct {
	entries     ContributionRepository
	identities  IdentityRepository
	scorer      policy.Scorer
	accumulator BatchAppender
}

func NewContributionUsecase(
	entries ContributionRepository,
	identities IdentityRepository,
	scorer policy.Scorer,
	accumulator BatchAppender,
) *ContributionUsecase {
	return &ContributionUsecase{
		entries:     entries,
		identities:  identities,
		scorer:      scorer,
		accumulator: accumulator,
	}
}

// Submit records a candidate exactly once. A fingerprint already held by
// a live entry resolves to that entry unchanged; this is the idempotent
// success path, not an error.
func (uc *ContributionUsecase) Submit(ctx context.Context, session domain.Session, candidate contextly.ContributionCandidate) (domain.ContributionEntry, error) {
	ctx, span := tracer.Start(ctx, "Contribution.Usecase.Submit")
	defer span.End()

	if session.Revoked || session.ExpiredAt(time.Now()) {
		err := domain.ErrInvalidSessionForEntry.WithReason("session expired before submission")
		span.RecordError(err)
		return domain.ContributionEntry{}, err
	}

	if err := policy.ValidateSignals(candidate.Signals); err != nil {
		serr := domain.ErrScoreOutOfRange.WithReason(err.Error())
		span.RecordError(serr)
		return domain.ContributionEntry{}, serr
	}

	score := uc.scorer.Score(candidate.Signals)
	reward := policy.Reward(score, candidate.Type)

	entry := domain.ContributionEntry{
		ID:                 uuid.NewString(),
		SessionID:          session.ID,
		Identity:           session.Identity,
		ContentFingerprint: candidate.ContentFingerprint,
		Type:               candidate.Type,
		Platform:           candidate.Platform,
		QualityScore:       score,
		Reward:             reward,
		Status:             domain.EntryPending,
		CreatedAt:          time.Now(),
	}

	stored, created, err := uc.entries.InsertIfAbsent(ctx, entry)
	if err != nil {
		span.RecordError(errors.Wrap(err, "ledger insert failed"))
		return domain.ContributionEntry{}, err
	}

	if !created {
		if stored.Status == domain.EntryFailed {
			// the failed entry gave up its fingerprint claim; revive it
			revived, err := uc.entries.Revive(ctx, stored.ID)
			if err != nil {
				span.RecordError(err)
				return domain.ContributionEntry{}, err
			}
			uc.enqueue(ctx, revived)
			return revived, nil
		}
		return stored, nil
	}

	uc.enqueue(ctx, stored)
	return stored, nil
}

// enqueue hands a pending entry to the accumulator. Failures are not
// surfaced to the caller; the accumulator's periodic requeue picks
// stranded pending entries back up.
func (uc *ContributionUsecase) enqueue(ctx context.Context, entry domain.ContributionEntry) {
	if uc.accumulator == nil {
		return
	}
	if err := uc.accumulator.Append(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue entry for batching",
			slog.String("entryID", entry.ID),
			slog.String("error", err.Error()),
			slog.String("module", "ledger"),
		)
	}
}

// Get returns a single entry by id.
func (uc *ContributionUsecase) Get(ctx context.Context, entryID string) (domain.ContributionEntry, error) {
	return uc.entries.Get(ctx, entryID)
}

// Mark advances entries along the monotonic lifecycle. Only the
// accumulator and the settlement coordinator call this.
func (uc *ContributionUsecase) Mark(ctx context.Context, entryIDs []string, from, to domain.EntryStatus) error {
	if !from.CanTransition(to) {
		return errors.Errorf("illegal entry transition %s -> %s", from, to)
	}
	return uc.entries.UpdateStatus(ctx, entryIDs, from, to)
}

// Confirm finalizes entries after settlement confirmation and nudges
// contributor reputation. This is the only path to the confirmed status.
func (uc *ContributionUsecase) Confirm(ctx context.Context, entryIDs []string, settlementRef string) ([]domain.ContributionEntry, error) {
	ctx, span := tracer.Start(ctx, "Contribution.Usecase.Confirm")
	defer span.End()

	confirmed, err := uc.entries.ConfirmEntries(ctx, entryIDs, settlementRef)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, entry := range confirmed {
		if err := uc.identities.AddReputation(ctx, entry.Identity, confirmedReputationDelta); err != nil {
			slog.WarnContext(ctx, "reputation update failed",
				slog.String("identity", entry.Identity),
				slog.String("error", err.Error()),
				slog.String("module", "ledger"),
			)
		}
	}

	return confirmed, nil
}

// Release reverts batched/submitting entries to pending after a failed
// settlement so the next accumulator cycle can re-batch them.
func (uc *ContributionUsecase) Release(ctx context.Context, entryIDs []string) error {
	return uc.entries.ReleaseEntries(ctx, entryIDs)
}

// ListPending exposes stranded pending entries for startup recovery.
func (uc *ContributionUsecase) ListPending(ctx context.Context, limit int) ([]domain.ContributionEntry, error) {
	return uc.entries.ListPending(ctx, limit)
}
