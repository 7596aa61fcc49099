package usecase

import (
	"context"
	"time"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

// CredentialVerifier validates a signed challenge against a claimed
// wallet address. Pure; no side effects.
type CredentialVerifier interface {
	Verify(ctx context.Context, address, message, signature string) error
}

// IdentityRepository defines persistence/lookup for identities.
type IdentityRepository interface {
	Upsert(ctx context.Context, address string) (domain.Identity, error)
	Get(ctx context.Context, address string) (domain.Identity, error)
	AddReputation(ctx context.Context, address string, delta float64) error
	LinkHandle(ctx context.Context, address string, handle string) error
}

// SessionStore issues and validates bounded-lifetime sessions. Issue
// returns the session and its self-contained token.
type SessionStore interface {
	Issue(ctx context.Context, identity string, method contextly.AuthMethod, ttl time.Duration) (domain.Session, string, error)
	Validate(ctx context.Context, token string) (domain.Session, error)
	Revoke(ctx context.Context, sessionID string) error
}

// ContributionRepository defines storage operations for ledger entries.
// InsertIfAbsent is atomic on the fingerprint index and reports whether
// the entry was newly created.
type ContributionRepository interface {
	InsertIfAbsent(ctx context.Context, entry domain.ContributionEntry) (domain.ContributionEntry, bool, error)
	Get(ctx context.Context, entryID string) (domain.ContributionEntry, error)
	Revive(ctx context.Context, entryID string) (domain.ContributionEntry, error)
	BindToBatch(ctx context.Context, entryID, batchID string, seq int) error
	UpdateStatus(ctx context.Context, entryIDs []string, from, to domain.EntryStatus) error
	ConfirmEntries(ctx context.Context, entryIDs []string, settlementRef string) ([]domain.ContributionEntry, error)
	ReleaseEntries(ctx context.Context, entryIDs []string) error
	ListPending(ctx context.Context, limit int) ([]domain.ContributionEntry, error)
}

// EarningsRepository aggregates ledger rows for reporting.
type EarningsRepository interface {
	Totals(ctx context.Context, identity string) (domain.EarningsView, error)
}

// BatchAppender receives newly pending entries for accumulation.
type BatchAppender interface {
	Append(ctx context.Context, entry domain.ContributionEntry) error
}
