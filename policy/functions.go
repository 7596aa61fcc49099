package policy

import (
	"fmt"

	"github.com/contextly/contextly-ledger"
)

// WeightedSum is the default Scorer.
type WeightedSum struct {
	weights Weights
}

func NewWeightedSum(weights Weights) *WeightedSum {
	return &WeightedSum{weights: weights}
}

func (p *WeightedSum) Score(signals contextly.QualitySignals) float64 {
	score := signals.Coherence*p.weights.Coherence +
		signals.Relevance*p.weights.Relevance +
		signals.Depth*p.weights.Depth +
		signals.Originality*p.weights.Originality
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ValidateSignals rejects malformed signal input before scoring.
func ValidateSignals(signals contextly.QualitySignals) error {
	for _, v := range []float64{signals.Coherence, signals.Relevance, signals.Depth, signals.Originality} {
		if v < 0 || v > 100 {
			return fmt.Errorf("signal out of range: %v", v)
		}
	}
	return nil
}

// BaseReward returns the tier base for a quality score.
func BaseReward(score float64) contextly.Amount {
	for _, tier := range Tiers {
		if score >= tier.MinScore {
			return tier.Base
		}
	}
	return 0
}

// Reward computes base x type multiplier. Integer milliunit arithmetic
// truncates, so aggregate issuance never exceeds the exact product.
func Reward(score float64, typ contextly.ContributionType) contextly.Amount {
	mult, ok := multipliers[typ]
	if !ok {
		mult = 1000
	}
	return BaseReward(score).MulRatio(mult, 1000)
}
