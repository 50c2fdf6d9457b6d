package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/judgehub/internal/models"
)

var (
	// ErrDuplicateScore is returned when a (competition, participant, judge) entry already exists
	ErrDuplicateScore = errors.New("score already exists for judge and participant")
	// ErrScoresExist is returned when a change would orphan or invalidate stored scores
	ErrScoresExist = errors.New("scores exist")
	// ErrDuplicateUsername is returned when creating a user whose name is taken
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrStaleCriteria is returned when a score no longer matches the stored criteria
	ErrStaleCriteria = errors.New("criteria changed since validation")
	// ErrNotFound is returned by mutations whose target row is missing
	ErrNotFound = errors.New("record not found")
)

// Repository defines the interface for JudgeHub persistence.
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Competitions. GetCompetition loads criteria, participants and judges.
	CreateCompetition(ctx context.Context, c *models.Competition) error
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
	ListCompetitions(ctx context.Context, filters models.CompetitionFilters) ([]*models.Competition, error)
	UpdateCompetitionStatus(ctx context.Context, id string, status models.CompetitionStatus) error

	// ReplaceCriteria swaps the criteria list atomically. It fails with
	// ErrScoresExist if any score exists for the competition.
	ReplaceCriteria(ctx context.Context, competitionID string, criteria []models.Criterion) error

	// Participants and judges
	AddParticipant(ctx context.Context, competitionID string, p *models.Participant) error
	// RemoveParticipant fails with ErrScoresExist if any score references the participant.
	RemoveParticipant(ctx context.Context, competitionID, participantID string) error
	AddJudge(ctx context.Context, competitionID, userID string) error

	// Scores. CreateScore writes the entry and all criterion rows or nothing,
	// and fails with ErrDuplicateScore if the triple is taken or with
	// ErrStaleCriteria if the stored criteria no longer match the entry.
	CreateScore(ctx context.Context, e *models.ScoreEntry) error
	GetScore(ctx context.Context, competitionID, participantID, judgeID string) (*models.ScoreEntry, error)
	ListScores(ctx context.Context, competitionID string) ([]*models.ScoreEntry, error)
	ListParticipantScores(ctx context.Context, competitionID, participantID string) ([]*models.ScoreEntry, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// coversCriteria reports whether scores name exactly the given criterion IDs
func coversCriteria(criterionIDs []string, scores []models.CriterionScore) bool {
	if len(criterionIDs) != len(scores) {
		return false
	}
	want := make(map[string]bool, len(criterionIDs))
	for _, id := range criterionIDs {
		want[id] = true
	}
	for _, s := range scores {
		if !want[s.CriterionID] {
			return false
		}
		delete(want, s.CriterionID)
	}
	return len(want) == 0
}
