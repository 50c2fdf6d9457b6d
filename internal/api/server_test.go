package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/config"
	"github.com/terra-clan/judgehub/internal/health"
	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/metrics"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/notify"
	"github.com/terra-clan/judgehub/internal/storage"
)

type testEnv struct {
	server  *Server
	service *judging.Service
	repo    *storage.MemoryRepository
	hub     *notify.Hub
	health  *health.Registry
	tokens  map[string]string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := storage.NewMemoryRepository()
	hub := notify.NewHub()
	issuer := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	reg, m := metrics.NewRegistry()
	svc := judging.NewService(repo, hub, judging.Options{Tokens: issuer, Metrics: m})
	hr := health.NewRegistry(time.Second)
	hr.Register("storage", repo)

	srv := NewServer(config.ServerConfig{}, Deps{
		Service:    svc,
		Subscriber: hub,
		Tokens:     issuer,
		Health:     hr,
		Metrics:    m,
		Gatherer:   reg,
		LoginRate:  0.001,
		LoginBurst: 3,
	})

	env := &testEnv{server: srv, service: svc, repo: repo, hub: hub, health: hr, tokens: map[string]string{}}
	for _, u := range []*models.User{
		{ID: "admin", Username: "admin", Role: models.RoleAdmin},
		{ID: "judge-1", Username: "judge-1", Role: models.RoleJudge},
		{ID: "judge-2", Username: "judge-2", Role: models.RoleJudge},
		{ID: "viewer", Username: "viewer", Role: models.RoleViewer},
	} {
		require.NoError(t, repo.CreateUser(context.Background(), u))
		token, _, err := issuer.Issue(u)
		require.NoError(t, err)
		env.tokens[u.ID] = token
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, as string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[as])
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (e *testEnv) createCompetition(t *testing.T) *models.Competition {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/api/v1/competitions", "admin", map[string]interface{}{
		"name":         "Demo Day",
		"participants": []string{"Alpha", "Beta"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var c models.Competition
	require.NoError(t, json.Unmarshal(body.Data, &c))
	return &c
}

func scorePayload(participantID, judgeID string, a, b float64) map[string]interface{} {
	return map[string]interface{}{
		"participantId": participantID,
		"judgeId":       judgeID,
		"scores": []map[string]interface{}{
			{"criterionId": "a", "score": a},
			{"criterionId": "b", "score": b, "comment": "solid"},
		},
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	rec, _ = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.health.Register("redis", health.CheckerFunc(func(ctx context.Context) error { return errors.New("down") }))
	rec, body = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", body.Error.Code)
}

func TestCompetitionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	payload := map[string]string{"name": "Demo"}

	rec, body := env.do(t, http.MethodPost, "/api/v1/competitions", "", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body.Error.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/competitions", "judge-1", payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/competitions", "viewer", payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/competitions", "admin", payload)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/v1/competitions", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body.Data), `"total":1`)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/competitions/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScoringFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCompetition(t)
	base := "/api/v1/competitions/" + c.ID
	alpha, beta := c.Participants[0].ID, c.Participants[1].ID

	rec, body := env.do(t, http.MethodPut, base+"/criteria", "admin", map[string]interface{}{
		"criteria": []map[string]interface{}{{"id": "a", "name": "A", "weight": 60}, {"id": "b", "name": "B", "weight": 39}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", body.Error.Code)

	rec, _ = env.do(t, http.MethodPut, base+"/criteria", "admin", map[string]interface{}{
		"criteria": []map[string]interface{}{{"id": "a", "name": "A", "weight": 60}, {"id": "b", "name": "B", "weight": 40}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodPost, base+"/scores", "judge-1", scorePayload(alpha, "judge-1", 10, 5))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "competition not open for scoring", body.Error.Message)

	rec, _ = env.do(t, http.MethodPut, base+"/status", "admin", map[string]string{"status": "live"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodPost, base+"/scores", "judge-1", scorePayload(alpha, "judge-1", 10, 5))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, string(body.Data), "scoreId")

	rec, body = env.do(t, http.MethodPost, base+"/scores", "judge-1", scorePayload(alpha, "judge-1", 1, 1))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already scored", body.Error.Message)

	rec, _ = env.do(t, http.MethodPost, base+"/scores", "judge-1", scorePayload(beta, "judge-2", 7, 7))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodPost, base+"/scores", "viewer", scorePayload(beta, "viewer", 7, 7))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = env.do(t, http.MethodPost, base+"/scores", "judge-2", scorePayload(beta, "", 10.5, 7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body.Error.Message, "score out of range")

	rec, _ = env.do(t, http.MethodPost, base+"/scores", "judge-2", scorePayload(beta, "", 9, 9))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body = env.do(t, http.MethodGet, base+"/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lb leaderboardResponse
	require.NoError(t, json.Unmarshal(body.Data, &lb))
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, beta, lb.Entries[0].ParticipantID)
	assert.InDelta(t, 9.0, lb.Entries[0].AggregateScore, 1e-9)
	assert.Equal(t, alpha, lb.Entries[1].ParticipantID)
	assert.Equal(t, 8.0, lb.Entries[1].DisplayScore)

	rec, body = env.do(t, http.MethodGet, base+"/participants/"+alpha+"/scores", "judge-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body.Data), `"judgeId":"judge-1"`)

	rec, body = env.do(t, http.MethodGet, base+"/participants/"+beta+"/scores", "judge-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"score":null}`, string(body.Data))

	rec, _ = env.do(t, http.MethodGet, base+"/participants/"+alpha+"/scores?judgeId=judge-2", "judge-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(t, http.MethodGet, base+"/scores", "judge-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = env.do(t, http.MethodGet, base+"/scores", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body.Data), `"total":2`)

	rec, _ = env.do(t, http.MethodPut, base+"/criteria", "admin", map[string]interface{}{
		"criteria": []map[string]interface{}{{"name": "Only", "weight": 100}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, base+"/participants/"+alpha, "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLeaderboardDiff(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCompetition(t)
	base := "/api/v1/competitions/" + c.ID
	alpha, beta := c.Participants[0].ID, c.Participants[1].ID

	rec, body := env.do(t, http.MethodPost, base+"/leaderboard/diff", "", map[string]interface{}{
		"previous": map[string]int{alpha: 2, beta: 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp diffResponse
	require.NoError(t, json.Unmarshal(body.Data, &resp))
	assert.Equal(t, models.DeltaUp, resp.Entries[0].Delta)
	assert.Equal(t, models.DeltaDown, resp.Entries[1].Delta)
	assert.Equal(t, map[string]int{alpha: 1, beta: 2}, resp.Ranks)
}

func TestLeaderboardXLSX(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCompetition(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/competitions/"+c.ID+"/leaderboard.xlsx", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestLoginAndRateLimit(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.Register(context.Background(), judging.RegisterInput{
		Username: "carol", Password: "carol-password", Role: models.RoleJudge,
	})
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: "carol", Password: "carol-password"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res judging.LoginResult
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.NotEmpty(t, res.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	me := httptest.NewRecorder()
	env.server.Router().ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"carol"`)
	assert.NotContains(t, me.Body.String(), "password")

	for i := 0; i < 2; i++ {
		rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: "carol", Password: "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: "carol", Password: "nope-nope"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", body.Error.Code)
}

func TestUsersEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/users", "judge-1", judging.RegisterInput{Username: "x", Password: "xxxxxxxx", Role: models.RoleJudge})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/v1/users", "admin", judging.RegisterInput{Username: "dora", Password: "dora-password", Role: models.RoleJudge})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, string(body.Data), "password")

	rec, _ = env.do(t, http.MethodPost, "/api/v1/users", "admin", judging.RegisterInput{Username: "dora", Password: "dora-password", Role: models.RoleJudge})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/v1/users", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body.Data), `"total":5`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "judgehub_leaderboard_build_seconds")
}

func TestSubscribeWS(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCompetition(t)
	other := env.createCompetition(t)

	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/competitions/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"missing/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+c.ID+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg StreamMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamMessage{Type: "subscribed", CompetitionID: c.ID}, msg)

	require.Eventually(t, func() bool { return env.hub.Count(c.ID) == 1 }, time.Second, 10*time.Millisecond)

	env.hub.Dispatch(notify.ScoreUpdate(other.ID))
	env.hub.Dispatch(notify.ScoreUpdate(c.ID))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamMessage{Type: notify.EventScoreUpdate, CompetitionID: c.ID}, msg)

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Count(c.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitScore_BodyTypeErrorNamesField(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCompetition(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/competitions/"+c.ID+"/scores", "judge-1", map[string]interface{}{
		"participantId": c.Participants[0].ID,
		"scores":        []map[string]interface{}{{"criterionId": "a", "score": "7"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body.Error.Code)
	assert.Contains(t, body.Error.Message, "score")
	assert.Contains(t, body.Error.Message, "expected float64")
}

func TestDecodeErrorMessage(t *testing.T) {
	var v struct {
		Weight float64 `json:"weight"`
	}

	err := json.Unmarshal([]byte(`{"weight":"heavy"}`), &v)
	assert.Equal(t, "invalid value for weight: expected float64, got string", decodeErrorMessage(err))

	err = json.NewDecoder(strings.NewReader(`{"weight":`)).Decode(&v)
	assert.Equal(t, "invalid JSON body", decodeErrorMessage(err))

	err = json.Unmarshal([]byte(`{"weight" 1}`), &v)
	assert.Contains(t, decodeErrorMessage(err), "malformed JSON at offset")
}
