package policy

import (
	"github.com/contextly/contextly-ledger"
)

// Scorer collapses raw quality signals into a single 0-100 score.
// The scoring strategy is swappable; the ledger only depends on the
// 0-100 contract.
type Scorer interface {
	Score(signals contextly.QualitySignals) float64
}

// Weights for the weighted-sum scorer. Fixed configuration, not derived
// at runtime; must sum to 1.
type Weights struct {
	Coherence   float64
	Relevance   float64
	Depth       float64
	Originality float64
}

var DefaultWeights = Weights{
	Coherence:   0.40,
	Relevance:   0.30,
	Depth:       0.20,
	Originality: 0.10,
}

// RewardTier maps an inclusive score lower bound to a base reward.
type RewardTier struct {
	MinScore float64
	Base     contextly.Amount
}

// Tiers are evaluated highest-first. Scores of 60 and below earn nothing.
var Tiers = []RewardTier{
	{MinScore: 86, Base: 2 * contextly.MilliPerUnit},
	{MinScore: 71, Base: 1500},
	{MinScore: 61, Base: 1 * contextly.MilliPerUnit},
	{MinScore: 0, Base: 0},
}

// type multipliers in permille: conversation x1.0, summary x1.5,
// knowledge_graph x2.0, validation x1.2
var multipliers = map[contextly.ContributionType]int64{
	contextly.TypeConversation:   1000,
	contextly.TypeSummary:        1500,
	contextly.TypeKnowledgeGraph: 2000,
	contextly.TypeValidation:     1200,
}
