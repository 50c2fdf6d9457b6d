package judging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/notify"
	"github.com/terra-clan/judgehub/internal/scoring"
	"github.com/terra-clan/judgehub/internal/storage"
)

// CreateCompetitionInput describes a new competition
type CreateCompetitionInput struct {
	Name         string                   `json:"name"`
	Description  string                   `json:"description,omitempty"`
	StartsAt     *time.Time               `json:"startsAt,omitempty"`
	EndsAt       *time.Time               `json:"endsAt,omitempty"`
	Criteria     []scoring.CriterionInput `json:"criteria,omitempty"`
	Participants []string                 `json:"participants,omitempty"`
}

// CreateCompetition stores a new upcoming competition
func (s *Service) CreateCompetition(ctx context.Context, in CreateCompetitionInput, createdBy string) (*models.Competition, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newError(ErrValidation, "name is required")
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return nil, newError(ErrValidation, "endsAt must be after startsAt")
	}

	var criteria []models.Criterion
	if len(in.Criteria) > 0 {
		normalized, err := scoring.NormalizeCriteria(in.Criteria)
		if err != nil {
			return nil, validationError(err)
		}
		criteria = normalized
	}

	participants := make([]models.Participant, 0, len(in.Participants))
	for i, pname := range in.Participants {
		pname = strings.TrimSpace(pname)
		if pname == "" {
			return nil, newError(ErrValidation, "participant %d: name is required", i)
		}
		participants = append(participants, models.Participant{ID: uuid.NewString(), Name: pname, Position: i})
	}

	now := s.now()
	c := &models.Competition{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  in.Description,
		StartsAt:     in.StartsAt,
		EndsAt:       in.EndsAt,
		Status:       models.StatusUpcoming,
		Criteria:     criteria,
		Participants: participants,
		Judges:       []string{},
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateCompetition(ctx, c); err != nil {
		return nil, storageError("create competition", err)
	}

	slog.Info("competition created", "competition_id", c.ID, "name", c.Name)
	return c, nil
}

// GetCompetition returns a competition with its criteria, participants and judges
func (s *Service) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	c, err := s.repo.GetCompetition(ctx, id)
	if err != nil {
		return nil, storageError("get competition", err)
	}
	if c == nil {
		return nil, newError(ErrNotFound, "competition not found")
	}
	return c, nil
}

// ListCompetitions lists competitions, newest first
func (s *Service) ListCompetitions(ctx context.Context, filters models.CompetitionFilters) ([]*models.Competition, error) {
	list, err := s.repo.ListCompetitions(ctx, filters)
	if err != nil {
		return nil, storageError("list competitions", err)
	}
	if list == nil {
		list = []*models.Competition{}
	}
	return list, nil
}

// UpdateStatus moves a competition to next if the transition is allowed
func (s *Service) UpdateStatus(ctx context.Context, id string, next models.CompetitionStatus) (*models.Competition, error) {
	c, err := s.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == next {
		return c, nil
	}
	if !c.Status.CanTransitionTo(next) {
		return nil, newError(ErrConflict, "cannot change status from %s to %s", c.Status, next)
	}
	if next == models.StatusOngoing && len(c.Criteria) == 0 {
		return nil, newError(ErrConflict, "competition has no criteria")
	}

	if err := s.repo.UpdateCompetitionStatus(ctx, id, next); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, "competition not found")
		}
		return nil, storageError("update status", err)
	}

	slog.Info("competition status changed",
		"competition_id", id,
		"from", c.Status,
		"to", next,
	)

	c.Status = next
	c.UpdatedAt = s.now()
	s.publish(ctx, notify.Event{Type: notify.EventStatusChange, CompetitionID: id, Status: string(next)})
	return c, nil
}

// AdvanceLifecycle starts upcoming competitions whose start time has passed
// and completes ongoing ones whose end time has passed. It returns the
// number of competitions changed.
func (s *Service) AdvanceLifecycle(ctx context.Context, now time.Time) (int, error) {
	changed := 0

	advance := func(from, to models.CompetitionStatus, due func(*models.Competition) bool) error {
		list, err := s.repo.ListCompetitions(ctx, models.CompetitionFilters{Status: from})
		if err != nil {
			return storageError("list competitions", err)
		}
		for _, c := range list {
			if !due(c) {
				continue
			}
			if _, err := s.UpdateStatus(ctx, c.ID, to); err != nil {
				if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			changed++
		}
		return nil
	}

	err := advance(models.StatusUpcoming, models.StatusOngoing, func(c *models.Competition) bool {
		return c.StartsAt != nil && !c.StartsAt.After(now)
	})
	if err != nil {
		return changed, err
	}

	err = advance(models.StatusOngoing, models.StatusCompleted, func(c *models.Competition) bool {
		return c.EndsAt != nil && !c.EndsAt.After(now)
	})
	return changed, err
}

// AddParticipant appends a participant to an upcoming competition
func (s *Service) AddParticipant(ctx context.Context, competitionID, name string) (*models.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(ErrValidation, "participant name is required")
	}

	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if err := requireUpcoming(c); err != nil {
		return nil, err
	}

	p := &models.Participant{ID: uuid.NewString(), Name: name}
	if err := s.repo.AddParticipant(ctx, competitionID, p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, "competition not found")
		}
		return nil, storageError("add participant", err)
	}

	slog.Info("participant added", "competition_id", competitionID, "participant_id", p.ID)
	return p, nil
}

// requireUpcoming rejects changes to the roster or criteria once a
// competition has started
func requireUpcoming(c *models.Competition) error {
	if c.Status != models.StatusUpcoming {
		return newError(ErrConflict, "competition is %s", c.Status)
	}
	return nil
}

// RemoveParticipant deletes a participant that no score references
func (s *Service) RemoveParticipant(ctx context.Context, competitionID, participantID string) error {
	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return err
	}
	if c.Participant(participantID) == nil {
		return newError(ErrNotFound, "participant not found")
	}

	if err := s.repo.RemoveParticipant(ctx, competitionID, participantID); err != nil {
		switch {
		case errors.Is(err, storage.ErrScoresExist):
			return newError(ErrConflict, "participant has scores")
		case errors.Is(err, storage.ErrNotFound):
			return newError(ErrNotFound, "participant not found")
		default:
			return storageError("remove participant", err)
		}
	}

	slog.Info("participant removed", "competition_id", competitionID, "participant_id", participantID)
	return nil
}

// AddJudge records userID on the competition's informational judges list
func (s *Service) AddJudge(ctx context.Context, competitionID, userID string) (*models.Competition, error) {
	c, err := s.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if err := requireUpcoming(c); err != nil {
		return nil, err
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Role.CanJudge() {
		return nil, newError(ErrValidation, "user %s cannot judge", u.Username)
	}
	if c.HasJudge(userID) {
		return c, nil
	}

	if err := s.repo.AddJudge(ctx, competitionID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, "competition not found")
		}
		return nil, storageError("add judge", err)
	}

	c.Judges = append(c.Judges, userID)
	return c, nil
}
