package session

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mcdev12/planning-poker/go/internal/models"
)

func votesOf(values ...int) []models.Vote {
	votes := make([]models.Vote, len(values))
	for i, v := range values {
		votes[i].PlayerID = string(rune('a' + i))
		if v == 0 {
			continue
		}
		e := models.Estimate(v)
		votes[i].Value = &e
	}
	return votes
}

func TestCalculateStatistics(t *testing.T) {
	tests := []struct {
		name      string
		votes     []models.Vote
		average   float64
		median    float64
		mode      models.Mode
		rng       models.Range
		consensus bool
		outliers  []string
	}{
		{
			name:    "two modes",
			votes:   votesOf(3, 3, 5, 5, 7),
			average: 4.6, median: 5, mode: models.Mode{3, 5},
			rng: models.Range{Min: 3, Max: 7}, consensus: false, outliers: []string{},
		},
		{
			name:    "unanimous",
			votes:   votesOf(2, 2, 2),
			average: 2, median: 2, mode: models.Mode{2},
			rng: models.Range{Min: 2, Max: 2}, consensus: true, outliers: []string{},
		},
		{
			name:    "all distinct degenerates to minimum",
			votes:   votesOf(1, 2, 3),
			average: 2, median: 2, mode: models.Mode{1},
			rng: models.Range{Min: 1, Max: 3}, consensus: false, outliers: []string{},
		},
		{
			name:    "even count median and outliers",
			votes:   votesOf(1, 7),
			average: 4, median: 4, mode: models.Mode{1},
			rng: models.Range{Min: 1, Max: 7}, consensus: false, outliers: []string{"a", "b"},
		},
		{
			name:    "unvoted slots ignored",
			votes:   votesOf(0, 2, 3, 0, 3),
			average: 2.7, median: 3, mode: models.Mode{3},
			rng: models.Range{Min: 2, Max: 3}, consensus: true, outliers: []string{},
		},
		{
			name:    "single outlier in vote order",
			votes:   votesOf(7, 1, 1, 2),
			average: 2.8, median: 1.5, mode: models.Mode{1},
			rng: models.Range{Min: 1, Max: 7}, consensus: false, outliers: []string{"a"},
		},
		{
			name:    "average rounds half up",
			votes:   votesOf(1, 1, 2, 3),
			average: 1.8, median: 1.5, mode: models.Mode{1},
			rng: models.Range{Min: 1, Max: 3}, consensus: false, outliers: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := CalculateStatistics(tt.votes)
			if err != nil {
				t.Fatalf("CalculateStatistics: %v", err)
			}
			if stats.Average != tt.average {
				t.Fatalf("average: expected %v, got %v", tt.average, stats.Average)
			}
			if stats.Median != tt.median {
				t.Fatalf("median: expected %v, got %v", tt.median, stats.Median)
			}
			if !reflect.DeepEqual(stats.Mode, tt.mode) {
				t.Fatalf("mode: expected %v, got %v", tt.mode, stats.Mode)
			}
			if stats.Range != tt.rng {
				t.Fatalf("range: expected %+v, got %+v", tt.rng, stats.Range)
			}
			if stats.Consensus != tt.consensus {
				t.Fatalf("consensus: expected %v, got %v", tt.consensus, stats.Consensus)
			}
			if !reflect.DeepEqual(stats.Outliers, tt.outliers) {
				t.Fatalf("outliers: expected %v, got %v", tt.outliers, stats.Outliers)
			}
		})
	}
}

func TestCalculateStatisticsNoVotes(t *testing.T) {
	if _, err := CalculateStatistics(votesOf(0, 0)); !errors.Is(err, ErrNoVotes) {
		t.Fatalf("expected ErrNoVotes, got %v", err)
	}
	if _, err := CalculateStatistics(nil); !errors.Is(err, ErrNoVotes) {
		t.Fatalf("expected ErrNoVotes for nil votes, got %v", err)
	}
}

func TestCalculateStatisticsLeavesInputUntouched(t *testing.T) {
	votes := votesOf(7, 1, 3)
	if _, err := CalculateStatistics(votes); err != nil {
		t.Fatalf("CalculateStatistics: %v", err)
	}
	if *votes[0].Value != 7 || *votes[1].Value != 1 || *votes[2].Value != 3 {
		t.Fatal("input votes were reordered")
	}
}
