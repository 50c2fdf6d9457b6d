package models

import "math"

// RankDelta describes how a participant's rank moved between two leaderboard reads
type RankDelta string

const (
	DeltaUp        RankDelta = "up"
	DeltaDown      RankDelta = "down"
	DeltaUnchanged RankDelta = "unchanged"
)

// RankedEntry is one derived leaderboard row. It is never persisted.
type RankedEntry struct {
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	AggregateScore  float64   `json:"aggregateScore"`
	JudgeCount      int       `json:"judgeCount"`
	Degraded        bool      `json:"degraded,omitempty"`
	Rank            int       `json:"rank"`
	PreviousRank    int       `json:"previousRank,omitempty"`
	Delta           RankDelta `json:"delta,omitempty"`
}

// DisplayScore rounds the aggregate to one decimal place for presentation
func (e RankedEntry) DisplayScore() float64 {
	return RoundScore(e.AggregateScore)
}

// RoundScore rounds to one decimal place
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}

// Leaderboard is the ranked view of a competition
type Leaderboard struct {
	CompetitionID string        `json:"competitionId"`
	Aggregation   string        `json:"aggregation"`
	Entries       []RankedEntry `json:"entries"`
}
