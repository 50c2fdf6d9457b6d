package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/terra-clan/judgehub/internal/models"
)

const (
	// TotalWeight is the required sum of criterion weights
	TotalWeight = 100.0

	MinScore = 1.0
	MaxScore = 10.0

	weightTolerance = 1e-9
)

// Validation failures. Callers match these with errors.Is.
var (
	ErrNoCriteria       = errors.New("no criteria defined")
	ErrInvalidWeight    = errors.New("criterion weight must be positive")
	ErrWeightSum        = errors.New("criterion weights must sum to 100")
	ErrCriterionName    = errors.New("criterion name is required")
	ErrDuplicateID      = errors.New("duplicate criterion id")
	ErrCriteriaMismatch = errors.New("criteria mismatch")
	ErrScoreOutOfRange  = errors.New("score out of range")
)

// CriterionInput is an unsaved criterion. ID may be empty.
type CriterionInput struct {
	ID     string  `json:"id,omitempty"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// NormalizeCriteria validates a criteria list and assigns IDs where absent.
func NormalizeCriteria(in []CriterionInput) ([]models.Criterion, error) {
	if len(in) == 0 {
		return nil, ErrNoCriteria
	}

	seen := make(map[string]bool, len(in))
	out := make([]models.Criterion, 0, len(in))
	sum := 0.0

	for i, c := range in {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("criterion %d: %w", i, ErrCriterionName)
		}
		if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight <= 0 {
			return nil, fmt.Errorf("criterion %q: %w", name, ErrInvalidWeight)
		}

		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = uuid.New().String()
		}
		if seen[id] {
			return nil, fmt.Errorf("criterion %q: %w", id, ErrDuplicateID)
		}
		seen[id] = true

		sum += c.Weight
		out = append(out, models.Criterion{ID: id, Name: name, Weight: c.Weight})
	}

	if math.Abs(sum-TotalWeight) > weightTolerance {
		return nil, fmt.Errorf("%w: got %g", ErrWeightSum, sum)
	}

	return out, nil
}

// ValidateScores checks that scores cover exactly the defined criteria and
// that every value is a finite number in [MinScore, MaxScore].
func ValidateScores(criteria []models.Criterion, scores []models.CriterionScore) error {
	if len(criteria) == 0 {
		return ErrNoCriteria
	}

	defined := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		defined[c.ID] = true
	}

	seen := make(map[string]bool, len(scores))
	for _, s := range scores {
		if !defined[s.CriterionID] {
			return fmt.Errorf("%w: unknown criterion %q", ErrCriteriaMismatch, s.CriterionID)
		}
		if seen[s.CriterionID] {
			return fmt.Errorf("%w: duplicate criterion %q", ErrCriteriaMismatch, s.CriterionID)
		}
		seen[s.CriterionID] = true
	}
	if len(seen) != len(defined) {
		for _, c := range criteria {
			if !seen[c.ID] {
				return fmt.Errorf("%w: missing criterion %q", ErrCriteriaMismatch, c.ID)
			}
		}
	}

	for _, s := range scores {
		if !ValidScore(s.Score) {
			return fmt.Errorf("%w: %q has %g", ErrScoreOutOfRange, s.CriterionID, s.Score)
		}
	}

	return nil
}

// ValidScore reports whether v is a finite number in [MinScore, MaxScore]
func ValidScore(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= MinScore && v <= MaxScore
}
