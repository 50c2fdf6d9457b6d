package models

import (
	"strings"
	"time"
)

// CompetitionStatus represents the lifecycle state of a competition
type CompetitionStatus string

const (
	StatusUpcoming  CompetitionStatus = "upcoming"
	StatusOngoing   CompetitionStatus = "ongoing"
	StatusCompleted CompetitionStatus = "completed"
	StatusCanceled  CompetitionStatus = "canceled"
)

// ParseCompetitionStatus normalizes user input; "live" is accepted for ongoing.
func ParseCompetitionStatus(s string) (CompetitionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upcoming":
		return StatusUpcoming, true
	case "ongoing", "live":
		return StatusOngoing, true
	case "completed":
		return StatusCompleted, true
	case "canceled", "cancelled":
		return StatusCanceled, true
	default:
		return "", false
	}
}

// IsTerminal returns true if the competition can no longer change
func (s CompetitionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s CompetitionStatus) CanTransitionTo(next CompetitionStatus) bool {
	switch s {
	case StatusUpcoming:
		return next == StatusOngoing || next == StatusCanceled
	case StatusOngoing:
		return next == StatusCompleted || next == StatusCanceled
	default:
		return false
	}
}

// Competition represents a judged event
type Competition struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	StartsAt     *time.Time        `json:"startsAt,omitempty"`
	EndsAt       *time.Time        `json:"endsAt,omitempty"`
	Status       CompetitionStatus `json:"status"`
	Criteria     []Criterion       `json:"criteria"`
	Participants []Participant     `json:"participants"`
	Judges       []string          `json:"judges"`
	CreatedBy    string            `json:"createdBy,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Criterion is a weighted scoring dimension. Weight is in percentage points.
type Criterion struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Participant is a scored entrant. Position records insertion order.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Participant returns the participant with the given ID, or nil
func (c *Competition) Participant(id string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].ID == id {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasJudge reports whether userID is on the informational judges list
func (c *Competition) HasJudge(userID string) bool {
	for _, j := range c.Judges {
		if j == userID {
			return true
		}
	}
	return false
}

// CompetitionFilters defines filters for listing competitions
type CompetitionFilters struct {
	Status CompetitionStatus
	Limit  int
	Offset int
}
