package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/terra-clan/judgehub/internal/models"
)

// newPostgresTestRepository starts a disposable PostgreSQL, applies the
// migrations and returns a repository connected to it. The test is skipped
// when Docker is not available.
func newPostgresTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	const (
		dbName   = "judgehub"
		user     = "judgehub"
		password = "judgehub"
	)
	ctx := context.Background()

	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForSQL("5432/tcp", "postgres",
				func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
						user, password, host, port.Port(), dbName)
				},
			).WithStartupTimeout(45*time.Second),
		),
	)
	if ctr != nil {
		testcontainers.CleanupContainer(t, ctr)
	}
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, MigrateFromDSN(ctx, dsn, filepath.Join("..", "..", "migrations")))

	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 20, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

// seedPostgresCompetition creates an ongoing competition with criteria a/b,
// participants p1/p2 and judges j1/j2. IDs are prefixed so subtests sharing
// one database do not collide.
func seedPostgresCompetition(t *testing.T, repo *PostgresRepository, prefix string) *models.Competition {
	t.Helper()
	ctx := context.Background()

	for _, j := range []string{"j1", "j2"} {
		require.NoError(t, repo.CreateUser(ctx, &models.User{
			ID:           prefix + j,
			Username:     prefix + j,
			PasswordHash: "x",
			Role:         models.RoleJudge,
			CreatedAt:    time.Now(),
		}))
	}

	now := time.Now().UTC()
	c := &models.Competition{
		ID:       prefix + "comp",
		Name:     "Spring Hackathon " + prefix,
		Status:   models.StatusOngoing,
		Criteria: []models.Criterion{{ID: "a", Name: "A", Weight: 60}, {ID: "b", Name: "B", Weight: 40}},
		Participants: []models.Participant{
			{ID: "p1", Name: "Team One", Position: 0},
			{ID: "p2", Name: "Team Two", Position: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateCompetition(ctx, c))
	return c
}

func pgEntry(c *models.Competition, id, participant, judge string) *models.ScoreEntry {
	return &models.ScoreEntry{
		ID:            c.ID + "-" + id,
		CompetitionID: c.ID,
		ParticipantID: participant,
		JudgeID:       strings.TrimSuffix(c.ID, "comp") + judge,
		Scores: []models.CriterionScore{
			{CriterionID: "a", Score: 7, Comment: "clear idea"},
			{CriterionID: "b", Score: 8.5},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestPostgresRepository(t *testing.T) {
	repo := newPostgresTestRepository(t)
	ignoreCreatedAt := cmpopts.IgnoreFields(models.ScoreEntry{}, "CreatedAt")

	t.Run("competition round trip", func(t *testing.T) {
		ctx := context.Background()
		c := seedPostgresCompetition(t, repo, "rt-")

		got, err := repo.GetCompetition(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.Criteria, got.Criteria)
		require.Len(t, got.Participants, 2)
		assert.Equal(t, "p2", got.Participants[1].ID)

		p := &models.Participant{ID: "p3", Name: "Team Three"}
		require.NoError(t, repo.AddParticipant(ctx, c.ID, p))
		assert.Equal(t, 2, p.Position)

		missing, err := repo.GetCompetition(ctx, "nope")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("duplicate triple", func(t *testing.T) {
		ctx := context.Background()
		c := seedPostgresCompetition(t, repo, "dup-")

		require.NoError(t, repo.CreateScore(ctx, pgEntry(c, "s1", "p1", "j1")))
		assert.ErrorIs(t, repo.CreateScore(ctx, pgEntry(c, "s2", "p1", "j1")), ErrDuplicateScore)
		assert.NoError(t, repo.CreateScore(ctx, pgEntry(c, "s3", "p1", "j2")))

		scores, err := repo.ListScores(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, scores, 2)
	})

	t.Run("concurrent same triple", func(t *testing.T) {
		c := seedPostgresCompetition(t, repo, "race-")

		const attempts = 12
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- repo.CreateScore(context.Background(), pgEntry(c, fmt.Sprintf("s%d", i), "p1", "j1"))
			}(i)
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrDuplicateScore)
		}
		assert.Equal(t, 1, succeeded)

		scores, err := repo.ListParticipantScores(context.Background(), c.ID, "p1")
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Len(t, scores[0].Scores, 2)
	})

	t.Run("stale criteria", func(t *testing.T) {
		ctx := context.Background()
		c := seedPostgresCompetition(t, repo, "stale-")

		e := pgEntry(c, "s1", "p1", "j1")
		e.Scores = e.Scores[:1]
		assert.ErrorIs(t, repo.CreateScore(ctx, e), ErrStaleCriteria)

		none, err := repo.GetScore(ctx, c.ID, "p1", e.JudgeID)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("entries are written all or nothing", func(t *testing.T) {
		ctx := context.Background()
		c := seedPostgresCompetition(t, repo, "atomic-")

		bad := pgEntry(c, "s1", "p1", "j1")
		bad.Scores[1].Score = 11
		require.Error(t, repo.CreateScore(ctx, bad))

		none, err := repo.GetScore(ctx, c.ID, "p1", bad.JudgeID)
		require.NoError(t, err)
		assert.Nil(t, none)

		assert.NoError(t, repo.CreateScore(ctx, pgEntry(c, "s2", "p1", "j1")))
	})

	t.Run("guards after scoring", func(t *testing.T) {
		ctx := context.Background()
		c := seedPostgresCompetition(t, repo, "guard-")

		require.NoError(t, repo.ReplaceCriteria(ctx, c.ID, []models.Criterion{{ID: "a", Name: "A", Weight: 50}, {ID: "b", Name: "B", Weight: 50}}))
		require.NoError(t, repo.CreateScore(ctx, pgEntry(c, "s1", "p1", "j1")))

		assert.ErrorIs(t, repo.ReplaceCriteria(ctx, c.ID, []models.Criterion{{ID: "c", Name: "C", Weight: 100}}), ErrScoresExist)
		assert.ErrorIs(t, repo.RemoveParticipant(ctx, c.ID, "p1"), ErrScoresExist)
		assert.NoError(t, repo.RemoveParticipant(ctx, c.ID, "p2"))
		assert.ErrorIs(t, repo.RemoveParticipant(ctx, c.ID, "p2"), ErrNotFound)

		got, err := repo.GetCompetition(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, got.Criteria[0].Weight)
	})

	t.Run("multi-criterion entries round trip", func(t *testing.T) {
		ctx := context.Background()
		c := seedPostgresCompetition(t, repo, "fold-")

		first := pgEntry(c, "s1", "p1", "j1")
		second := pgEntry(c, "s2", "p2", "j1")
		second.Scores = []models.CriterionScore{{CriterionID: "a", Score: 3}, {CriterionID: "b", Score: 4, Comment: "rushed demo"}}
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		third := pgEntry(c, "s3", "p1", "j2")
		third.CreatedAt = first.CreatedAt.Add(2 * time.Second)

		for _, e := range []*models.ScoreEntry{first, second, third} {
			require.NoError(t, repo.CreateScore(ctx, e))
		}

		got, err := repo.GetScore(ctx, c.ID, "p2", second.JudgeID)
		require.NoError(t, err)
		if diff := cmp.Diff(second, got, ignoreCreatedAt); diff != "" {
			t.Errorf("GetScore mismatch (-want +got):\n%s", diff)
		}

		all, err := repo.ListScores(ctx, c.ID)
		require.NoError(t, err)
		if diff := cmp.Diff([]*models.ScoreEntry{first, second, third}, all, ignoreCreatedAt); diff != "" {
			t.Errorf("ListScores mismatch (-want +got):\n%s", diff)
		}

		p1, err := repo.ListParticipantScores(ctx, c.ID, "p1")
		require.NoError(t, err)
		if diff := cmp.Diff([]*models.ScoreEntry{first, third}, p1, ignoreCreatedAt); diff != "" {
			t.Errorf("ListParticipantScores mismatch (-want +got):\n%s", diff)
		}
	})
}
