package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/export"
	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/scoring"
)

// Criteria handlers

type defineCriteriaRequest struct {
	Criteria []scoring.CriterionInput `json:"criteria"`
}

func (s *Server) handleDefineCriteria(w http.ResponseWriter, r *http.Request) {
	var req defineCriteriaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	criteria, err := s.service.DefineCriteria(r.Context(), chi.URLParam(r, "id"), req.Criteria)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"criteria": criteria,
	})
}

func (s *Server) handleGetCriteria(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.service.GetCriteria(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"criteria": criteria,
	})
}

// Score handlers

type submitScoreResponse struct {
	ScoreID   string    `json:"scoreId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req judging.SubmitScoreInput
	if !decodeJSON(w, r, &req) {
		return
	}

	caller := PrincipalFromContext(r.Context())
	req.CompetitionID = chi.URLParam(r, "id")
	req.Caller = caller
	if req.JudgeID == "" {
		req.JudgeID = caller.UserID
	}
	if req.ParticipantID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "participantId is required")
		return
	}

	entry, err := s.service.SubmitScore(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, submitScoreResponse{
		ScoreID:   entry.ID,
		CreatedAt: entry.CreatedAt,
	})
}

func (s *Server) handleListScores(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListScores(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scores": entries,
		"total":  len(entries),
	})
}

func (s *Server) handleGetJudgeScores(w http.ResponseWriter, r *http.Request) {
	caller := PrincipalFromContext(r.Context())

	judgeID := r.URL.Query().Get("judgeId")
	if judgeID == "" {
		judgeID = caller.UserID
	}
	if judgeID != caller.UserID && !auth.Allows(caller.Role, auth.PermReadLedger) {
		respondError(w, http.StatusForbidden, "forbidden", "judges may only read their own scores")
		return
	}

	entry, err := s.service.GetScoresForJudge(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid"), judgeID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// No entry yet is a normal answer, not an error
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"score": entry,
	})
}

// Leaderboard handlers

type rankedEntryResponse struct {
	models.RankedEntry
	DisplayScore float64 `json:"displayScore"`
}

type leaderboardResponse struct {
	CompetitionID string                `json:"competitionId"`
	Aggregation   string                `json:"aggregation"`
	Entries       []rankedEntryResponse `json:"entries"`
}

func newLeaderboardResponse(lb *models.Leaderboard) leaderboardResponse {
	resp := leaderboardResponse{
		CompetitionID: lb.CompetitionID,
		Aggregation:   lb.Aggregation,
		Entries:       make([]rankedEntryResponse, 0, len(lb.Entries)),
	}
	for _, e := range lb.Entries {
		resp.Entries = append(resp.Entries, rankedEntryResponse{RankedEntry: e, DisplayScore: e.DisplayScore()})
	}
	return resp
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := s.service.BuildLeaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newLeaderboardResponse(lb))
}

type diffRequest struct {
	Previous map[string]int `json:"previous"`
}

type diffResponse struct {
	leaderboardResponse
	Ranks map[string]int `json:"ranks"`
}

func (s *Server) handleLeaderboardDiff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lb, next, err := s.service.DiffLeaderboard(r.Context(), chi.URLParam(r, "id"), req.Previous)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, diffResponse{
		leaderboardResponse: newLeaderboardResponse(lb),
		Ranks:               next,
	})
}

func (s *Server) handleLeaderboardXLSX(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.service.GetCompetition(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	lb, err := s.service.BuildLeaderboard(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteLeaderboardXLSX(&buf, c, lb); err != nil {
		slog.Error("failed to export leaderboard", "competition_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to export leaderboard")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leaderboard-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write export", "error", err)
	}
}
