package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps judging errors to HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	msg := judging.Message(err)
	switch {
	case errors.Is(err, judging.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", msg)
	case errors.Is(err, judging.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, judging.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", msg)
	case errors.Is(err, judging.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", msg)
	case errors.Is(err, judging.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized", msg)
	case errors.Is(err, judging.ErrStorageUnavailable):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", msg)
	default:
		slog.Error("unhandled service error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", decodeErrorMessage(err))
		return false
	}
	return true
}

// decodeErrorMessage names the offending field when the body has the wrong shape
func decodeErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return fmt.Sprintf("invalid value for %s: expected %s, got %s", field, typeErr.Type, typeErr.Value)
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	default:
		return "invalid JSON body"
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks, ok := s.health.CheckAll(r.Context())
	if !ok {
		for _, c := range checks {
			if !c.Healthy {
				slog.Warn("dependency not ready", "name", c.Name, "error", c.Error)
			}
		}
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}

// Auth and user handlers

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())

	u, err := s.service.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req judging.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}

// Competition handlers

func (s *Server) handleListCompetitions(w http.ResponseWriter, r *http.Request) {
	filters := models.CompetitionFilters{}

	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status, ok := models.ParseCompetitionStatus(statusStr)
		if !ok {
			respondError(w, http.StatusBadRequest, "validation_error", "invalid status")
			return
		}
		filters.Status = status
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	list, err := s.service.ListCompetitions(r.Context(), filters)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"competitions": list,
		"total":        len(list),
	})
}

func (s *Server) handleCreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req judging.CreateCompetitionInput
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := s.service.CreateCompetition(r.Context(), req, PrincipalFromContext(r.Context()).UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCompetition(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetCompetition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, ok := models.ParseCompetitionStatus(req.Status)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid status")
		return
	}

	c, err := s.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

type addParticipantRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req addParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.service.AddParticipant(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid")); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "participant removed",
	})
}

type addJudgeRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleAddJudge(w http.ResponseWriter, r *http.Request) {
	var req addJudgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "userId is required")
		return
	}

	c, err := s.service.AddJudge(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}
