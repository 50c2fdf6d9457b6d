package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/judgehub/internal/models"
)

// Client is a Go SDK for the judgehub API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new judgehub client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsConflict reports whether err is a 409 response
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Login exchanges credentials for a token and keeps it for later calls
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	var result struct {
		Token     string       `json:"token"`
		ExpiresAt time.Time    `json:"expiresAt"`
		User      *models.User `json:"user"`
	}
	req := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", req, &result); err != nil {
		return nil, err
	}

	c.token = result.Token
	return result.User, nil
}

// Token returns the bearer token in use
func (c *Client) Token() string {
	return c.token
}

// CreateUserRequest represents a user creation request
type CreateUserRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// CreateUser creates a user (admin only)
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodPost, "/api/v1/users", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateCompetitionRequest represents a competition creation request
type CreateCompetitionRequest struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	StartsAt     *time.Time         `json:"startsAt,omitempty"`
	EndsAt       *time.Time         `json:"endsAt,omitempty"`
	Criteria     []models.Criterion `json:"criteria,omitempty"`
	Participants []string           `json:"participants,omitempty"`
}

// CreateCompetition creates a new competition (admin only)
func (c *Client) CreateCompetition(ctx context.Context, req CreateCompetitionRequest) (*models.Competition, error) {
	var comp models.Competition
	if err := c.do(ctx, http.MethodPost, "/api/v1/competitions", req, &comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// GetCompetition retrieves a competition by ID
func (c *Client) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	var comp models.Competition
	if err := c.do(ctx, http.MethodGet, "/api/v1/competitions/"+url.PathEscape(id), nil, &comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// ListOptions contains options for listing competitions
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// ListCompetitions lists competitions, newest first
func (c *Client) ListCompetitions(ctx context.Context, opts ListOptions) ([]*models.Competition, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/competitions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result struct {
		Competitions []*models.Competition `json:"competitions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Competitions, nil
}

// UpdateStatus changes a competition's status (admin only)
func (c *Client) UpdateStatus(ctx context.Context, id string, status models.CompetitionStatus) (*models.Competition, error) {
	var comp models.Competition
	req := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPut, c.competitionPath(id, "/status"), req, &comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// DefineCriteria replaces a competition's criteria (admin only)
func (c *Client) DefineCriteria(ctx context.Context, id string, criteria []models.Criterion) ([]models.Criterion, error) {
	var result struct {
		Criteria []models.Criterion `json:"criteria"`
	}
	req := map[string]interface{}{"criteria": criteria}
	if err := c.do(ctx, http.MethodPut, c.competitionPath(id, "/criteria"), req, &result); err != nil {
		return nil, err
	}
	return result.Criteria, nil
}

// GetCriteria returns a competition's criteria
func (c *Client) GetCriteria(ctx context.Context, id string) ([]models.Criterion, error) {
	var result struct {
		Criteria []models.Criterion `json:"criteria"`
	}
	if err := c.do(ctx, http.MethodGet, c.competitionPath(id, "/criteria"), nil, &result); err != nil {
		return nil, err
	}
	return result.Criteria, nil
}

// AddParticipant appends a participant (admin only)
func (c *Client) AddParticipant(ctx context.Context, id, name string) (*models.Participant, error) {
	var p models.Participant
	req := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, c.competitionPath(id, "/participants"), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddJudge adds a user to the competition's judges list (admin only)
func (c *Client) AddJudge(ctx context.Context, id, userID string) error {
	req := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, c.competitionPath(id, "/judges"), req, nil)
}

// SubmitScoreRequest is one judge's scoring of one participant.
// JudgeID defaults to the authenticated user.
type SubmitScoreRequest struct {
	ParticipantID string                  `json:"participantId"`
	JudgeID       string                  `json:"judgeId,omitempty"`
	Scores        []models.CriterionScore `json:"scores"`
}

// SubmitScore submits a score and returns its ID
func (c *Client) SubmitScore(ctx context.Context, competitionID string, req SubmitScoreRequest) (string, error) {
	var result struct {
		ScoreID string `json:"scoreId"`
	}
	if err := c.do(ctx, http.MethodPost, c.competitionPath(competitionID, "/scores"), req, &result); err != nil {
		return "", err
	}
	return result.ScoreID, nil
}

// GetScoresForJudge returns the judge's entry for a participant, or nil if
// the judge has not scored them yet. An empty judgeID means the caller.
func (c *Client) GetScoresForJudge(ctx context.Context, competitionID, participantID, judgeID string) (*models.ScoreEntry, error) {
	path := c.competitionPath(competitionID, "/participants/"+url.PathEscape(participantID)+"/scores")
	if judgeID != "" {
		path += "?judgeId=" + url.QueryEscape(judgeID)
	}

	var result struct {
		Score *models.ScoreEntry `json:"score"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Score, nil
}

// LeaderboardEntry is a ranked row with its display-rounded score
type LeaderboardEntry struct {
	models.RankedEntry
	DisplayScore float64 `json:"displayScore"`
}

// Leaderboard is the ranked view of a competition
type Leaderboard struct {
	CompetitionID string             `json:"competitionId"`
	Aggregation   string             `json:"aggregation"`
	Entries       []LeaderboardEntry `json:"entries"`
}

// Leaderboard fetches the current leaderboard
func (c *Client) Leaderboard(ctx context.Context, competitionID string) (*Leaderboard, error) {
	var lb Leaderboard
	if err := c.do(ctx, http.MethodGet, c.competitionPath(competitionID, "/leaderboard"), nil, &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// DiffLeaderboard fetches the leaderboard annotated with rank movement
// since previous, and returns the ranks to pass on the next call.
func (c *Client) DiffLeaderboard(ctx context.Context, competitionID string, previous map[string]int) (*Leaderboard, map[string]int, error) {
	var result struct {
		Leaderboard
		Ranks map[string]int `json:"ranks"`
	}
	req := map[string]interface{}{"previous": previous}
	if err := c.do(ctx, http.MethodPost, c.competitionPath(competitionID, "/leaderboard/diff"), req, &result); err != nil {
		return nil, nil, err
	}
	return &result.Leaderboard, result.Ranks, nil
}

// ExportLeaderboard downloads the leaderboard as an XLSX workbook
func (c *Client) ExportLeaderboard(ctx context.Context, competitionID string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, c.competitionPath(competitionID, "/leaderboard.xlsx"), nil)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

func (c *Client) competitionPath(id, suffix string) string {
	return "/api/v1/competitions/" + url.PathEscape(id) + suffix
}

// do sends in as JSON and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var result struct {
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &result) == nil && result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		} else {
			apiErr.Message = string(respBody)
		}
		return nil, apiErr
	}

	return respBody, nil
}
