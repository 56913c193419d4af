package session

import (
	"math"
	"sort"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

// Outliers are votes further than this from the median.
const outlierDistance = 2

// Votes whose spread is at most this are in agreement.
const consensusSpread = 1

// CalculateStatistics summarises the cast votes of a round. Votes without a
// value are ignored. It returns ErrNoVotes when nothing was cast.
func CalculateStatistics(votes []models.Vote) (models.VoteStatistics, error) {
	values := make([]int, 0, len(votes))
	for _, v := range votes {
		if v.Value != nil {
			values = append(values, int(*v.Value))
		}
	}
	if len(values) == 0 {
		return models.VoteStatistics{}, ErrNoVotes
	}
	sort.Ints(values)

	sum := 0
	for _, v := range values {
		sum += v
	}
	n := len(values)

	median := medianOf(values)
	lo, hi := values[0], values[n-1]

	outliers := []string{}
	for _, v := range votes {
		if v.Value == nil {
			continue
		}
		if math.Abs(float64(*v.Value)-median) > outlierDistance {
			outliers = append(outliers, v.PlayerID)
		}
	}

	return models.VoteStatistics{
		Average:   roundTenths(float64(sum*10) / float64(n)),
		Median:    median,
		Mode:      modeOf(values),
		Range:     models.Range{Min: lo, Max: hi},
		Consensus: hi-lo <= consensusSpread,
		Outliers:  outliers,
	}, nil
}

// roundTenths takes an already ×10 scaled mean and rounds it half-up to one decimal.
func roundTenths(scaled float64) float64 {
	return math.Floor(scaled+0.5) / 10
}

func medianOf(sorted []int) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 0 {
		return float64(sorted[mid-1]+sorted[mid]) / 2
	}
	return float64(sorted[mid])
}

// modeOf expects sorted input. When every value is equally frequent there is
// no real mode and the minimum is reported.
func modeOf(sorted []int) models.Mode {
	freq := make(map[int]int, len(sorted))
	maxFreq := 0
	for _, v := range sorted {
		freq[v]++
		if freq[v] > maxFreq {
			maxFreq = freq[v]
		}
	}

	var candidates []int
	for v, f := range freq {
		if f == maxFreq {
			candidates = append(candidates, v)
		}
	}
	sort.Ints(candidates)

	if len(candidates) == len(sorted) {
		return models.Mode{sorted[0]}
	}
	return models.Mode(candidates)
}
