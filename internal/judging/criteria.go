package judging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/scoring"
	"github.com/terra-clan/judgehub/internal/storage"
)

// DefineCriteria replaces a competition's criteria. Weights must be positive
// and sum to 100. Criteria can only change while the competition is upcoming.
func (s *Service) DefineCriteria(ctx context.Context, competitionID string, in []scoring.CriterionInput) ([]models.Criterion, error) {
	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if err := requireUpcoming(c); err != nil {
		return nil, err
	}

	scores, err := s.repo.ListScores(ctx, competitionID)
	if err != nil {
		return nil, storageError("list scores", err)
	}
	if len(scores) > 0 {
		return nil, newError(ErrConflict, "criteria cannot change after scoring has begun")
	}

	criteria, err := scoring.NormalizeCriteria(in)
	if err != nil {
		return nil, validationError(err)
	}

	if err := s.repo.ReplaceCriteria(ctx, competitionID, criteria); err != nil {
		switch {
		case errors.Is(err, storage.ErrScoresExist):
			return nil, newError(ErrConflict, "criteria cannot change after scoring has begun")
		case errors.Is(err, storage.ErrNotFound):
			return nil, newError(ErrNotFound, "competition not found")
		default:
			return nil, storageError("replace criteria", err)
		}
	}

	slog.Info("criteria defined", "competition_id", competitionID, "count", len(criteria))
	return criteria, nil
}

// GetCriteria returns the current criteria of a competition
func (s *Service) GetCriteria(ctx context.Context, competitionID string) ([]models.Criterion, error) {
	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if c.Criteria == nil {
		return []models.Criterion{}, nil
	}
	return c.Criteria, nil
}
