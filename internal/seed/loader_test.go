package seed

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/storage"
)

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFile_Validation(t *testing.T) {
	dir := t.TempDir()

	writeFixture(t, dir, "bad-role.yaml", "users:\n  - username: x\n    password: y\n    role: root\n")
	_, err := LoadFile(filepath.Join(dir, "bad-role.yaml"))
	assert.ErrorContains(t, err, "invalid role")

	writeFixture(t, dir, "bad-status.yaml", "competitions:\n  - name: x\n    status: paused\n")
	_, err = LoadFile(filepath.Join(dir, "bad-status.yaml"))
	assert.ErrorContains(t, err, "invalid status")

	writeFixture(t, dir, "broken.yaml", "users: [")
	_, err = LoadFile(filepath.Join(dir, "broken.yaml"))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestApply_ShippedFixtures(t *testing.T) {
	dir := filepath.Join("..", "..", "fixtures")
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		t.Skip("fixtures directory not found, skipping")
	}

	files, err := LoadDir(dir)
	require.NoError(t, err)

	svc := judging.NewService(storage.NewMemoryRepository(), nil, judging.Options{})
	ctx := context.Background()

	res, err := Apply(ctx, svc, files)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 2, res.Competitions)

	ongoing, err := svc.ListCompetitions(ctx, models.CompetitionFilters{Status: models.StatusOngoing})
	require.NoError(t, err)
	require.Len(t, ongoing, 1)
	assert.Equal(t, "Spring Demo Day", ongoing[0].Name)
	assert.Len(t, ongoing[0].Judges, 2)
	assert.Len(t, ongoing[0].Participants, 3)
	assert.Equal(t, "idea", ongoing[0].Criteria[0].ID)

	again, err := Apply(ctx, svc, files)
	require.NoError(t, err)
	assert.Equal(t, Result{}, again)
}

func TestApply_UnknownJudge(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "comp.yaml", `
competitions:
  - name: Solo
    criteria:
      - name: Only
        weight: 100
    judges: [ghost]
`)
	files, err := LoadDir(dir)
	require.NoError(t, err)

	svc := judging.NewService(storage.NewMemoryRepository(), nil, judging.Options{})
	_, err = Apply(context.Background(), svc, files)
	assert.ErrorContains(t, err, "unknown judge")
}
