package models

import "time"

// CriterionScore is one judge's raw score for one criterion
type CriterionScore struct {
	CriterionID string  `json:"criterionId"`
	Score       float64 `json:"score"`
	Comment     string  `json:"comment,omitempty"`
}

// ScoreEntry is a judge's complete submission for one participant.
// It is immutable once stored.
type ScoreEntry struct {
	ID            string           `json:"id"`
	CompetitionID string           `json:"competitionId"`
	ParticipantID string           `json:"participantId"`
	JudgeID       string           `json:"judgeId"`
	Scores        []CriterionScore `json:"scores"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// ScoreFor returns the raw score for criterionID
func (e *ScoreEntry) ScoreFor(criterionID string) (float64, bool) {
	for _, s := range e.Scores {
		if s.CriterionID == criterionID {
			return s.Score, true
		}
	}
	return 0, false
}
