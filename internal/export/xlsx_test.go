package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/terra-clan/judgehub/internal/models"
)

func TestWriteLeaderboardXLSX(t *testing.T) {
	c := &models.Competition{
		Name: "Demo Day",
		Criteria: []models.Criterion{
			{ID: "a", Name: "Idea", Weight: 60},
			{ID: "b", Name: "Pitch", Weight: 40},
		},
	}
	lb := &models.Leaderboard{
		Entries: []models.RankedEntry{
			{ParticipantID: "p2", ParticipantName: "Beta", AggregateScore: 16.44, JudgeCount: 2, Rank: 1},
			{ParticipantID: "p1", ParticipantName: "Alpha", AggregateScore: 9.05, JudgeCount: 1, Rank: 2, Degraded: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLeaderboardXLSX(&buf, c, lb))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{LeaderboardSheet, CriteriaSheet}, f.GetSheetList())

	rows, err := f.GetRows(LeaderboardSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Rank", "Participant", "Score", "Judges", "Incomplete"}, rows[0])
	require.GreaterOrEqual(t, len(rows[1]), 4)
	assert.Equal(t, []string{"1", "Beta", "16.4", "2"}, rows[1][:4])
	assert.Equal(t, "Alpha", rows[2][1])
	assert.Equal(t, "yes", rows[2][4])

	criteria, err := f.GetRows(CriteriaSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Criterion", "Weight"}, {"Idea", "60"}, {"Pitch", "40"}}, criteria)
}

func TestWriteLeaderboardXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLeaderboardXLSX(&buf, &models.Competition{Name: "Empty"}, &models.Leaderboard{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(LeaderboardSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
