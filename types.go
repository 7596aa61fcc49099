package contextly

import (
	"strconv"
	"time"
)

// ContributionType classifies what kind of content a contribution carries.
type ContributionType string

const (
	TypeConversation   ContributionType = "conversation"
	TypeSummary        ContributionType = "summary"
	TypeKnowledgeGraph ContributionType = "knowledge_graph"
	TypeValidation     ContributionType = "validation"
)

func (t ContributionType) Valid() bool {
	switch t {
	case TypeConversation, TypeSummary, TypeKnowledgeGraph, TypeValidation:
		return true
	}
	return false
}

// AuthMethod identifies how a session was established.
type AuthMethod string

const (
	AuthMethodWallet AuthMethod = "wallet"
	AuthMethodOAuth  AuthMethod = "external_oauth"
	AuthMethodToken  AuthMethod = "token"
)

// QualitySignals are the raw scoring inputs attached to a candidate.
// Each signal is on a 0-100 scale; the scoring policy collapses them
// into a single quality score.
type QualitySignals struct {
	Coherence   float64 `json:"coherence"`
	Relevance   float64 `json:"relevance"`
	Depth       float64 `json:"depth"`
	Originality float64 `json:"originality"`
}

// ContributionCandidate is the payload produced by the capture layer.
// ContentFingerprint must be a deterministic hash of normalized content;
// re-captures of the same content collide intentionally.
type ContributionCandidate struct {
	ContentFingerprint string           `json:"contentFingerprint"`
	Type               ContributionType `json:"type"`
	Signals            QualitySignals   `json:"signals"`
	Platform           string           `json:"platform,omitempty"`
	CapturedAt         time.Time        `json:"capturedAt"`
}

// Amount is a CTXT reward amount in milliunits. Integer arithmetic keeps
// reward aggregation exact; one unit is 1000 milliunits.
type Amount int64

const MilliPerUnit = 1000

func AmountFromUnits(units float64) Amount {
	return Amount(units * MilliPerUnit)
}

func (a Amount) Units() float64 {
	return float64(a) / MilliPerUnit
}

// MulRatio scales the amount by num/den, truncating toward zero so that
// aggregate issuance never exceeds the exact product.
func (a Amount) MulRatio(num, den int64) Amount {
	return Amount(int64(a) * num / den)
}

func (a Amount) String() string {
	return strconv.FormatFloat(a.Units(), 'f', -1, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*a = Amount(f*MilliPerUnit + 0.5)
	return nil
}

// Event is published on the signal channel when an entry or batch
// changes status.
type Event struct {
	Type          string    `json:"type"`
	Identity      string    `json:"identity,omitempty"`
	EntryID       string    `json:"entryID,omitempty"`
	BatchID       string    `json:"batchID,omitempty"`
	Status        string    `json:"status,omitempty"`
	SettlementRef string    `json:"settlementRef,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	EventEntryConfirmed = "entry.confirmed"
	EventEntryFailed    = "entry.failed"
	EventBatchConfirmed = "batch.confirmed"
	EventBatchFailed    = "batch.failed"
)
