package scoring

import (
	"sort"

	"github.com/terra-clan/judgehub/internal/models"
)

// Rank orders participants by aggregate score, highest first.
// participants must be in insertion order; ties keep that order and
// still get distinct sequential ranks.
func Rank(participants []models.Participant, entries []*models.ScoreEntry, criteria []models.Criterion, policy Policy) []models.RankedEntry {
	byParticipant := make(map[string][]*models.ScoreEntry, len(participants))
	for _, e := range entries {
		byParticipant[e.ParticipantID] = append(byParticipant[e.ParticipantID], e)
	}

	ranked := make([]models.RankedEntry, 0, len(participants))
	for _, p := range participants {
		agg := AggregateEntries(p.ID, byParticipant[p.ID], criteria, policy)
		ranked = append(ranked, models.RankedEntry{
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
			AggregateScore:  agg.Score,
			JudgeCount:      agg.JudgeCount,
			Degraded:        agg.Degraded,
		})
	}

	return AssignRanks(ranked)
}

// AssignRanks stable-sorts entries by AggregateScore descending and sets Rank.
func AssignRanks(entries []models.RankedEntry) []models.RankedEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AggregateScore > entries[j].AggregateScore
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// DiffRanks annotates current with the movement relative to previous and
// returns the rank map to pass in on the next call. Participants missing
// from previous count as unchanged. The input slice is not modified.
func DiffRanks(previous map[string]int, current []models.RankedEntry) ([]models.RankedEntry, map[string]int) {
	annotated := make([]models.RankedEntry, len(current))
	next := make(map[string]int, len(current))

	for i, e := range current {
		prev, ok := previous[e.ParticipantID]
		switch {
		case !ok:
			e.PreviousRank = 0
			e.Delta = models.DeltaUnchanged
		case e.Rank < prev:
			e.PreviousRank = prev
			e.Delta = models.DeltaUp
		case e.Rank > prev:
			e.PreviousRank = prev
			e.Delta = models.DeltaDown
		default:
			e.PreviousRank = prev
			e.Delta = models.DeltaUnchanged
		}
		annotated[i] = e
		next[e.ParticipantID] = e.Rank
	}

	return annotated, next
}
