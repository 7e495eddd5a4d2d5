package stats

import (
	"math"
	"strings"
)

// Merge folds a chunk estimate into the accumulator and returns the new
// accumulator. Neither argument is modified.
func Merge(acc, chunk Analysis) Analysis {
	totalRallies := acc.TotalRallies + chunk.TotalRallies
	avgRallyLength := 0.0
	if totalRallies > 0 {
		avgRallyLength = (acc.AvgRallyLength*float64(acc.TotalRallies) +
			chunk.AvgRallyLength*float64(chunk.TotalRallies)) / float64(totalRallies)
	}

	return Analysis{
		TotalPoints:    acc.TotalPoints + chunk.TotalPoints,
		TotalRallies:   totalRallies,
		AvgRallyLength: math.Round(avgRallyLength*10) / 10,
		LongestRally:   math.Max(acc.LongestRally, chunk.LongestRally),
		ServeSpeed:     firstNonEmpty(chunk.ServeSpeed, acc.ServeSpeed),
		Player1Color:   firstNonEmpty(chunk.Player1Color, acc.Player1Color),
		Player2Color:   firstNonEmpty(chunk.Player2Color, acc.Player2Color),
		Player1:        mergePlayer(acc.Player1, chunk.Player1),
		Player2:        mergePlayer(acc.Player2, chunk.Player2),
		Summary:        joinNonEmpty(acc.Summary, chunk.Summary),
		Player1Insight: latestInsight(acc.Player1Insight, chunk.Player1Insight),
		Player2Insight: latestInsight(acc.Player2Insight, chunk.Player2Insight),
	}
}

// MergeAll folds chunks in order starting from Empty.
func MergeAll(chunks ...Analysis) Analysis {
	acc := Empty()
	for _, chunk := range chunks {
		acc = Merge(acc, chunk)
	}
	return acc
}

func mergePlayer(acc, chunk PlayerStats) PlayerStats {
	merged := PlayerStats{
		Score:                 acc.Score + chunk.Score,
		PointsWonOnServe:      acc.PointsWonOnServe + chunk.PointsWonOnServe,
		PointsWonOnReturn:     acc.PointsWonOnReturn + chunk.PointsWonOnReturn,
		ForehandWinners:       acc.ForehandWinners + chunk.ForehandWinners,
		BackhandWinners:       acc.BackhandWinners + chunk.BackhandWinners,
		TopspinShots:          acc.TopspinShots + chunk.TopspinShots,
		NetPoints:             acc.NetPoints + chunk.NetPoints,
		UnforcedErrors:        acc.UnforcedErrors + chunk.UnforcedErrors,
		ForcedErrors:          acc.ForcedErrors + chunk.ForcedErrors,
		UnderPressureErrors:   acc.UnderPressureErrors + chunk.UnderPressureErrors,
		TacticalErrors:        acc.TacticalErrors + chunk.TacticalErrors,
		FHForcedErrorsCreated: acc.FHForcedErrorsCreated + chunk.FHForcedErrorsCreated,
		FHOpeningAttacks:      acc.FHOpeningAttacks + chunk.FHOpeningAttacks,
		BHOpeningAttacks:      acc.BHOpeningAttacks + chunk.BHOpeningAttacks,
	}
	merged.FHOpeningAttackSuccess = weightedPercent(
		acc.FHOpeningAttackSuccess, acc.FHOpeningAttacks,
		chunk.FHOpeningAttackSuccess, chunk.FHOpeningAttacks,
	)
	merged.BHOpeningAttackSuccess = weightedPercent(
		acc.BHOpeningAttackSuccess, acc.BHOpeningAttacks,
		chunk.BHOpeningAttackSuccess, chunk.BHOpeningAttacks,
	)
	return merged
}

// weightedPercent returns the attempt-weighted mean of two success rates,
// rounded to a whole percent. Zero attempts yields zero.
func weightedPercent(accRate, accAttempts, chunkRate, chunkAttempts int) int {
	attempts := accAttempts + chunkAttempts
	if attempts <= 0 {
		return 0
	}
	weighted := float64(accRate*accAttempts+chunkRate*chunkAttempts) / float64(attempts)
	return int(math.Round(weighted))
}

func latestInsight(acc, chunk PlayerInsight) PlayerInsight {
	if chunk.Empty() {
		return acc
	}
	return chunk
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func joinNonEmpty(values ...string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}
