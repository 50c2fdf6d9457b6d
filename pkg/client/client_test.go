package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/judgehub/internal/api"
	"github.com/terra-clan/judgehub/internal/auth"
	"github.com/terra-clan/judgehub/internal/config"
	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/notify"
	"github.com/terra-clan/judgehub/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := storage.NewMemoryRepository()
	issuer := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	svc := judging.NewService(repo, notify.NewHub(), judging.Options{Tokens: issuer})

	_, err := svc.Register(context.Background(), judging.RegisterInput{
		Username: "admin", Password: "admin-password", Role: models.RoleAdmin,
	})
	require.NoError(t, err)

	srv := api.NewServer(config.ServerConfig{}, api.Deps{Service: svc, Tokens: issuer, LoginBurst: 100})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	admin := NewClient(ts.URL)
	require.NoError(t, admin.Health(ctx))

	_, err := admin.Login(ctx, "admin", "admin-password")
	require.NoError(t, err)
	assert.NotEmpty(t, admin.Token())

	judge, err := admin.CreateUser(ctx, CreateUserRequest{Username: "jo", Password: "jo-password", Role: models.RoleJudge})
	require.NoError(t, err)

	comp, err := admin.CreateCompetition(ctx, CreateCompetitionRequest{
		Name:         "Finals",
		Criteria:     []models.Criterion{{ID: "a", Name: "A", Weight: 70}, {ID: "b", Name: "B", Weight: 30}},
		Participants: []string{"Red", "Blue"},
	})
	require.NoError(t, err)
	require.Len(t, comp.Participants, 2)

	require.NoError(t, admin.AddJudge(ctx, comp.ID, judge.ID))
	_, err = admin.AddParticipant(ctx, comp.ID, "Green")
	require.NoError(t, err)
	_, err = admin.UpdateStatus(ctx, comp.ID, models.StatusOngoing)
	require.NoError(t, err)

	criteria, err := admin.GetCriteria(ctx, comp.ID)
	require.NoError(t, err)
	assert.Len(t, criteria, 2)

	jc := NewClient(ts.URL)
	_, err = jc.Login(ctx, "jo", "jo-password")
	require.NoError(t, err)

	blue := comp.Participants[1].ID
	none, err := jc.GetScoresForJudge(ctx, comp.ID, blue, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	req := SubmitScoreRequest{
		ParticipantID: blue,
		Scores:        []models.CriterionScore{{CriterionID: "a", Score: 9}, {CriterionID: "b", Score: 6}},
	}
	id, err := jc.SubmitScore(ctx, comp.ID, req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = jc.SubmitScore(ctx, comp.ID, req)
	assert.True(t, IsConflict(err))

	mine, err := jc.GetScoresForJudge(ctx, comp.ID, blue, "")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, id, mine.ID)

	lb, err := jc.Leaderboard(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 3)
	assert.Equal(t, blue, lb.Entries[0].ParticipantID)
	assert.Equal(t, 8.1, lb.Entries[0].DisplayScore)

	diffed, ranks, err := jc.DiffLeaderboard(ctx, comp.ID, map[string]int{blue: 2})
	require.NoError(t, err)
	assert.Equal(t, models.DeltaUp, diffed.Entries[0].Delta)
	assert.Equal(t, 1, ranks[blue])

	xlsx, err := jc.ExportLeaderboard(ctx, comp.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)

	list, err := jc.ListCompetitions(ctx, ListOptions{Status: "ongoing"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClient_Errors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := NewClient(ts.URL)

	_, err := c.GetCompetition(ctx, "missing")
	assert.True(t, IsNotFound(err))

	_, err = c.Login(ctx, "admin", "wrong-password")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)

	_, err = c.CreateCompetition(ctx, CreateCompetitionRequest{Name: "x"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
}
