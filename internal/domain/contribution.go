package domain

import (
	"time"

	"github.com/contextly/contextly-ledger"
)

type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryBatched    EntryStatus = "batched"
	EntrySubmitting EntryStatus = "submitting"
	EntryConfirmed  EntryStatus = "confirmed"
	EntryFailed     EntryStatus = "failed"
)

// Live reports whether the entry still holds its fingerprint claim.
// A failed entry gives the claim up and may be revived.
func (s EntryStatus) Live() bool {
	return s == EntryPending || s == EntryBatched || s == EntrySubmitting || s == EntryConfirmed
}

// CanTransition enforces the monotonic entry lifecycle
// pending -> batched -> submitting -> {confirmed | pending/failed}.
// No transition skips a state and confirmed is terminal.
func (s EntryStatus) CanTransition(to EntryStatus) bool {
	switch s {
	case EntryPending:
		return to == EntryBatched
	case EntryBatched:
		return to == EntrySubmitting || to == EntryPending || to == EntryFailed
	case EntrySubmitting:
		return to == EntryConfirmed || to == EntryPending || to == EntryFailed
	case EntryFailed:
		return to == EntryPending
	default:
		return false
	}
}

// ContributionEntry records a single rewarded contribution. The
// fingerprint is globally unique among live entries; that uniqueness is
// the exactly-once guarantee against duplicate submissions.
type ContributionEntry struct {
	ID                 string                     `json:"entryID"`
	SessionID          string                     `json:"sessionID"`
	Identity           string                     `json:"identity"`
	ContentFingerprint string                     `json:"contentFingerprint"`
	Type               contextly.ContributionType `json:"type"`
	Platform           string                     `json:"platform,omitempty"`
	QualityScore       float64                    `json:"qualityScore"`
	Reward             contextly.Amount           `json:"rewardAmount"`
	Status             EntryStatus                `json:"status"`
	BatchID            *string                    `json:"batchID,omitempty"`
	SettlementRef      *string                    `json:"settlementRef,omitempty"`
	CreatedAt          time.Time                  `json:"createdAt"`
}

type BatchStatus string

const (
	BatchAccumulating BatchStatus = "accumulating"
	BatchReady        BatchStatus = "ready"
	BatchSubmitting   BatchStatus = "submitting"
	BatchConfirmed    BatchStatus = "confirmed"
	BatchFailed       BatchStatus = "failed"
)

// Batch groups pending entries for one settlement submission. EntryIDs
// preserve submission order; exactly one batch owns an entry at a time.
type Batch struct {
	ID           string           `json:"batchID"`
	EntryIDs     []string         `json:"entryIDs"`
	Total        contextly.Amount `json:"totalAmount"`
	Status       BatchStatus      `json:"status"`
	AttemptCount int              `json:"attemptCount"`
	TxRef        *string          `json:"txRef,omitempty"`
	OpenedAt     time.Time        `json:"openedAt"`
}

// EarningsView is a read-only aggregation over the ledger. Only the
// confirmed sum is real; everything else is provisional and must be
// labeled as such to callers.
type EarningsView struct {
	Identity    string                               `json:"identity"`
	Lifetime    contextly.Amount                     `json:"lifetime"`
	ByType      map[contextly.ContributionType]contextly.Amount `json:"byType"`
	Confirmed   contextly.Amount                     `json:"confirmed"`
	Provisional contextly.Amount                     `json:"provisional"`
	Counts      map[EntryStatus]int64                `json:"counts"`
}
