package scoring

import (
	"fmt"
	"strings"

	"github.com/terra-clan/judgehub/internal/models"
)

// Policy decides how per-judge weighted totals combine into one participant score.
type Policy string

const (
	PolicySum     Policy = "sum"
	PolicyAverage Policy = "average"
)

// ParsePolicy accepts "sum" or "average"
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicySum, "":
		return PolicySum, nil
	case PolicyAverage, "avg", "mean":
		return PolicyAverage, nil
	default:
		return "", fmt.Errorf("unknown aggregation policy: %q", s)
	}
}

// WeightedTotal is one ScoreEntry's weighted score.
// Degraded is set when a defined criterion had no matching score; its
// contribution is counted as zero and its ID is listed in Missing.
type WeightedTotal struct {
	Value    float64
	Degraded bool
	Missing  []string
}

// ComputeWeightedTotal sums score*weight/100 over criteria.
func ComputeWeightedTotal(entry *models.ScoreEntry, criteria []models.Criterion) WeightedTotal {
	var wt WeightedTotal
	for _, c := range criteria {
		score, ok := entry.ScoreFor(c.ID)
		if !ok {
			wt.Degraded = true
			wt.Missing = append(wt.Missing, c.ID)
			continue
		}
		wt.Value += score * c.Weight / TotalWeight
	}
	return wt
}

// Aggregate is a participant's combined score across judges
type Aggregate struct {
	ParticipantID string
	Score         float64
	JudgeCount    int
	Degraded      bool
}

// AggregateEntries combines the weighted totals of entries for one participant.
// No rounding happens here.
func AggregateEntries(participantID string, entries []*models.ScoreEntry, criteria []models.Criterion, policy Policy) Aggregate {
	agg := Aggregate{ParticipantID: participantID}
	for _, e := range entries {
		if e.ParticipantID != participantID {
			continue
		}
		wt := ComputeWeightedTotal(e, criteria)
		agg.Score += wt.Value
		agg.JudgeCount++
		if wt.Degraded {
			agg.Degraded = true
		}
	}
	if policy == PolicyAverage && agg.JudgeCount > 0 {
		agg.Score /= float64(agg.JudgeCount)
	}
	return agg
}
