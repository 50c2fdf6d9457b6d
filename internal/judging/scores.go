package judging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/metrics"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/notify"
	"github.com/terra-clan/judgehub/internal/scoring"
	"github.com/terra-clan/judgehub/internal/storage"
)

// SubmitScoreInput is one judge's complete scoring of one participant
type SubmitScoreInput struct {
	CompetitionID string                  `json:"-"`
	ParticipantID string                  `json:"participantId"`
	JudgeID       string                  `json:"judgeId"`
	Scores        []models.CriterionScore `json:"scores"`

	// Caller is the authenticated submitter. A nil Caller is trusted.
	Caller *auth.Principal `json:"-"`
}

// SubmitScore appends a ScoreEntry to the ledger and returns it.
// A triple that already has an entry is rejected with ErrConflict whatever
// the payload, and nothing is written on any error path.
func (s *Service) SubmitScore(ctx context.Context, in SubmitScoreInput) (*models.ScoreEntry, error) {
	entry, err := s.submitScore(ctx, in)
	s.metrics.ScoreSubmissions.WithLabelValues(submissionResult(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.ScoreUpdate(in.CompetitionID))
	return entry, nil
}

func (s *Service) submitScore(ctx context.Context, in SubmitScoreInput) (*models.ScoreEntry, error) {
	if in.Caller != nil && in.Caller.UserID != in.JudgeID && !auth.Allows(in.Caller.Role, auth.PermSubmitForOthers) {
		return nil, newError(ErrForbidden, "judges may only submit their own scores")
	}

	c, err := s.GetCompetition(ctx, in.CompetitionID)
	if err != nil {
		return nil, err
	}
	if c.Participant(in.ParticipantID) == nil {
		return nil, newError(ErrNotFound, "participant not found")
	}

	judge, err := s.repo.GetUser(ctx, in.JudgeID)
	if err != nil {
		return nil, storageError("get judge", err)
	}
	if judge == nil {
		return nil, newError(ErrNotFound, "judge not found")
	}
	if !judge.Role.CanJudge() {
		return nil, newError(ErrForbidden, "user %s is not a judge", judge.Username)
	}

	if c.Status != models.StatusOngoing {
		return nil, newError(ErrConflict, "competition not open for scoring")
	}

	existing, err := s.repo.GetScore(ctx, in.CompetitionID, in.ParticipantID, in.JudgeID)
	if err != nil {
		return nil, storageError("get score", err)
	}
	if existing != nil {
		return nil, newError(ErrConflict, "already scored")
	}

	if err := scoring.ValidateScores(c.Criteria, in.Scores); err != nil {
		return nil, validationError(err)
	}

	entry := &models.ScoreEntry{
		ID:            uuid.NewString(),
		CompetitionID: in.CompetitionID,
		ParticipantID: in.ParticipantID,
		JudgeID:       in.JudgeID,
		Scores:        in.Scores,
		CreatedAt:     s.now(),
	}

	if err := s.repo.CreateScore(ctx, entry); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateScore):
			return nil, newError(ErrConflict, "already scored")
		case errors.Is(err, storage.ErrStaleCriteria):
			return nil, validationError(scoring.ErrCriteriaMismatch)
		case errors.Is(err, storage.ErrNotFound):
			return nil, newError(ErrNotFound, "participant not found")
		default:
			return nil, storageError("create score", err)
		}
	}

	slog.Info("score submitted",
		"competition_id", entry.CompetitionID,
		"participant_id", entry.ParticipantID,
		"judge_id", entry.JudgeID,
		"score_id", entry.ID,
	)
	return entry, nil
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultAccepted
	case errors.Is(err, ErrConflict):
		return metrics.ResultConflict
	case errors.Is(err, ErrValidation):
		return metrics.ResultInvalid
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrForbidden):
		return metrics.ResultForbidden
	default:
		return metrics.ResultError
	}
}

// GetScoresForJudge returns the judge's entry for a participant, or nil if
// the judge has not scored them yet.
func (s *Service) GetScoresForJudge(ctx context.Context, competitionID, participantID, judgeID string) (*models.ScoreEntry, error) {
	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if c.Participant(participantID) == nil {
		return nil, newError(ErrNotFound, "participant not found")
	}

	entry, err := s.repo.GetScore(ctx, competitionID, participantID, judgeID)
	if err != nil {
		return nil, storageError("get score", err)
	}
	return entry, nil
}

// ListScores returns every entry of a competition's ledger in submission order
func (s *Service) ListScores(ctx context.Context, competitionID string) ([]*models.ScoreEntry, error) {
	if _, err := s.GetCompetition(ctx, competitionID); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListScores(ctx, competitionID)
	if err != nil {
		return nil, storageError("list scores", err)
	}
	if entries == nil {
		entries = []*models.ScoreEntry{}
	}
	return entries, nil
}
