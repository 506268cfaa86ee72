package service

import (
	"math"

	"github.com/CaseMark/contract-clause-comparator/model"
)

// Default risk scores applied when no external analysis is available.
const (
	// RiskScoreUnmatched applies to missing and added clauses.
	RiskScoreUnmatched = 50
	// RiskScoreFallbackMinor applies when risk analysis fails for a
	// minor_change pair.
	RiskScoreFallbackMinor = 25
	// RiskScoreFallbackSignificant applies when risk analysis fails for a
	// significant_change pair.
	RiskScoreFallbackSignificant = 60
)

// AggregateRiskScores combines per-clause risk scores into one 0-100 overall
// score. Scores at or above 75 weigh 2.0, at or above 50 weigh 1.5, the rest
// 1.0, so one critical clause change outweighs several trivial ones. An empty
// list yields 0.
func AggregateRiskScores(scores []int) int {
	if len(scores) == 0 {
		return 0
	}

	var weightedSum, totalWeight float64
	for _, score := range scores {
		weight := 1.0
		switch {
		case score >= 75:
			weight = 2.0
		case score >= 50:
			weight = 1.5
		}
		weightedSum += float64(score) * weight
		totalWeight += weight
	}

	return int(math.Round(weightedSum / totalWeight))
}

// FallbackRiskScore returns the documented default for a change status when
// the external risk analysis is unavailable.
func FallbackRiskScore(status string) int {
	switch status {
	case model.ChangeSignificant:
		return RiskScoreFallbackSignificant
	case model.ChangeMinor:
		return RiskScoreFallbackMinor
	default:
		return RiskScoreUnmatched
	}
}
