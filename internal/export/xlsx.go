// Package export renders leaderboards as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/terra-clan/judgehub/internal/models"
)

const (
	LeaderboardSheet = "Leaderboard"
	CriteriaSheet    = "Criteria"
)

var leaderboardHeader = []interface{}{"Rank", "Participant", "Score", "Judges", "Incomplete"}

// WriteLeaderboardXLSX writes lb as an XLSX workbook with one row per
// participant in rank order, plus a sheet listing c's criteria.
func WriteLeaderboardXLSX(w io.Writer, c *models.Competition, lb *models.Leaderboard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), LeaderboardSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := setRow(f, LeaderboardSheet, 1, leaderboardHeader); err != nil {
		return err
	}
	for i, e := range lb.Entries {
		incomplete := ""
		if e.Degraded {
			incomplete = "yes"
		}
		row := []interface{}{e.Rank, e.ParticipantName, e.DisplayScore(), e.JudgeCount, incomplete}
		if err := setRow(f, LeaderboardSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(CriteriaSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := setRow(f, CriteriaSheet, 1, []interface{}{"Criterion", "Weight"}); err != nil {
		return err
	}
	for i, cr := range c.Criteria {
		if err := setRow(f, CriteriaSheet, i+2, []interface{}{cr.Name, cr.Weight}); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(LeaderboardSheet, "B", "B", 32); err != nil {
		return fmt.Errorf("failed to size column: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: c.Name, Creator: "judgehub"}); err != nil {
		return fmt.Errorf("failed to set properties: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
