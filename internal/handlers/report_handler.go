package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduquest-hq/progression-service/internal/services"
	"github.com/eduquest-hq/progression-service/internal/utils"
)

type ReportHandler struct {
	BaseHandler
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService, logger utils.Logger) *ReportHandler {
	return &ReportHandler{
		BaseHandler:   NewBaseHandler(logger),
		reportService: reportService,
	}
}

// ExportLeaderboard downloads the group leaderboard as a workbook
// @Summary Export group leaderboard
// @Description Streams the group's reward leaderboard as an xlsx file
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param group_id path string true "Group ID"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /reports/groups/{group_id}/leaderboard.xlsx [get]
func (h *ReportHandler) ExportLeaderboard(c *gin.Context) {
	groupID := ParseStringIDParam(c, "group_id")
	if groupID == "" {
		return
	}

	h.LogRequest(c, "Exporting leaderboard", "group_id", groupID)

	workbook, err := h.reportService.ExportGroupLeaderboard(c.Request.Context(), groupID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("leaderboard-%s.xlsx", groupID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		workbook)
}
