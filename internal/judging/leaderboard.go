package judging

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/scoring"
)

// AggregateParticipant combines every judge's weighted total for one participant
func (s *Service) AggregateParticipant(ctx context.Context, competitionID, participantID string) (scoring.Aggregate, error) {
	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return scoring.Aggregate{}, err
	}
	if c.Participant(participantID) == nil {
		return scoring.Aggregate{}, newError(ErrNotFound, "participant not found")
	}

	entries, err := s.repo.ListParticipantScores(ctx, competitionID, participantID)
	if err != nil {
		return scoring.Aggregate{}, storageError("list participant scores", err)
	}

	agg := scoring.AggregateEntries(participantID, entries, c.Criteria, s.policy)
	if agg.Degraded {
		slog.Warn("aggregate is missing criterion scores",
			"competition_id", competitionID,
			"participant_id", participantID,
		)
	}
	return agg, nil
}

// BuildLeaderboard ranks every participant by aggregate score, highest
// first. Equal scores keep participant insertion order and get distinct ranks.
func (s *Service) BuildLeaderboard(ctx context.Context, competitionID string) (*models.Leaderboard, error) {
	defer s.metrics.ObserveLeaderboard(time.Now())

	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListScores(ctx, competitionID)
	if err != nil {
		return nil, storageError("list scores", err)
	}

	return &models.Leaderboard{
		CompetitionID: competitionID,
		Aggregation:   string(s.policy),
		Entries:       scoring.Rank(c.Participants, entries, c.Criteria, s.policy),
	}, nil
}

// DiffLeaderboard builds the leaderboard and annotates it against the ranks
// the caller saw last. The returned map is the caller's next previous.
func (s *Service) DiffLeaderboard(ctx context.Context, competitionID string, previous map[string]int) (*models.Leaderboard, map[string]int, error) {
	lb, err := s.BuildLeaderboard(ctx, competitionID)
	if err != nil {
		return nil, nil, err
	}

	annotated, next := scoring.DiffRanks(previous, lb.Entries)
	lb.Entries = annotated
	return lb, next, nil
}
