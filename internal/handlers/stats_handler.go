package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduquest-hq/progression-service/internal/services"
	"github.com/eduquest-hq/progression-service/internal/utils"
)

type StatsHandler struct {
	BaseHandler
	statsService services.StatsService
}

func NewStatsHandler(statsService services.StatsService, logger utils.Logger) *StatsHandler {
	return &StatsHandler{
		BaseHandler:  NewBaseHandler(logger),
		statsService: statsService,
	}
}

// GetStats returns the platform-wide statistics
// @Summary Get platform stats
// @Description Returns the landing-page statistics counters
// @Tags stats
// @Produce json
// @Success 200 {object} models.PlatformStats
// @Failure 500 {object} ErrorResponse
// @Router /stats [get]
func (h *StatsHandler) GetStats(c *gin.Context) {
	h.LogRequest(c, "Getting platform stats")

	stats, err := h.statsService.Get(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// UpdateStats patches the editable platform statistics
// @Summary Update platform stats
// @Description Updates the manually curated statistics fields
// @Tags stats
// @Accept json
// @Produce json
// @Param stats body services.UpdateStatsRequest true "Stats fields"
// @Success 200 {object} models.PlatformStats
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /stats [put]
func (h *StatsHandler) UpdateStats(c *gin.Context) {
	h.LogRequest(c, "Updating platform stats")

	var req services.UpdateStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	stats, err := h.statsService.Update(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
