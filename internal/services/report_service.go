package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/eduquest-hq/progression-service/internal/repositories"
)

// DefaultReportService renders educator exports as xlsx workbooks.
type DefaultReportService struct {
	repo    repositories.Repository
	logger  *slog.Logger
	rewards RewardService
}

func NewReportService(repo repositories.Repository, logger *slog.Logger, rewards RewardService) *DefaultReportService {
	return &DefaultReportService{
		repo:    repo,
		logger:  logger,
		rewards: rewards,
	}
}

// ExportGroupLeaderboard writes the group's reward standings into a workbook,
// one row per student ordered by XP.
func (s *DefaultReportService) ExportGroupLeaderboard(ctx context.Context, groupID string) ([]byte, error) {
	entries, err := s.rewards.GetLeaderboard(ctx, groupID, 100)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", "error", err)
		}
	}()

	const sheet = "Leaderboard"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headers := []string{"Rank", "Student", "Student ID", "Total XP", "Total Coins", "Streak (days)"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err == nil {
		lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", lastHeader, headerStyle)
	}

	for i, entry := range entries {
		row := i + 2
		name := entry.StudentName
		if name == "" {
			name = entry.StudentID
		}
		values := []interface{}{entry.Rank, name, entry.StudentID, entry.TotalXP, entry.TotalCoins, entry.StreakDays}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	for col := 1; col <= len(headers); col++ {
		name, _ := excelize.ColumnNumberToName(col)
		_ = f.SetColWidth(sheet, name, name, 18)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	s.logger.Info("leaderboard exported", "group_id", groupID, "rows", len(entries))
	return buf.Bytes(), nil
}
