package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduquest-hq/progression-service/internal/services"
	"github.com/eduquest-hq/progression-service/internal/utils"
)

type RewardHandler struct {
	BaseHandler
	rewardService services.RewardService
}

func NewRewardHandler(rewardService services.RewardService, logger utils.Logger) *RewardHandler {
	return &RewardHandler{
		BaseHandler:   NewBaseHandler(logger),
		rewardService: rewardService,
	}
}

// GetStreak returns the caller's streak in a group
// @Summary Get streak
// @Description Returns the caller's current streak within a group
// @Tags rewards
// @Produce json
// @Param group_id path string true "Group ID"
// @Success 200 {object} services.StreakResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /rewards/groups/{group_id}/streak [get]
func (h *RewardHandler) GetStreak(c *gin.Context) {
	groupID := ParseStringIDParam(c, "group_id")
	if groupID == "" {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Getting streak", "group_id", groupID)

	streak, err := h.rewardService.GetStreak(c.Request.Context(), userID, groupID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, streak)
}

// GetSummary returns the caller's accumulated rewards in a group
// @Summary Get reward summary
// @Description Returns total XP, coins and streak for the caller within a group
// @Tags rewards
// @Produce json
// @Param group_id path string true "Group ID"
// @Success 200 {object} services.RewardSummaryResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /rewards/groups/{group_id}/summary [get]
func (h *RewardHandler) GetSummary(c *gin.Context) {
	groupID := ParseStringIDParam(c, "group_id")
	if groupID == "" {
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Getting reward summary", "group_id", groupID)

	summary, err := h.rewardService.GetSummary(c.Request.Context(), userID, groupID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetLeaderboard returns the group's reward standings
// @Summary Get group leaderboard
// @Description Ranks the group's students by accumulated XP
// @Tags rewards
// @Produce json
// @Param group_id path string true "Group ID"
// @Param limit query int false "Maximum entries" default(25)
// @Success 200 {object} SuccessResponse{data=[]services.LeaderboardEntry}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /rewards/groups/{group_id}/leaderboard [get]
func (h *RewardHandler) GetLeaderboard(c *gin.Context) {
	groupID := ParseStringIDParam(c, "group_id")
	if groupID == "" {
		return
	}

	limit := h.parseIntQuery(c, "limit", 25)

	h.LogRequest(c, "Getting leaderboard", "group_id", groupID, "limit", limit)

	entries, err := h.rewardService.GetLeaderboard(c.Request.Context(), groupID, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Leaderboard retrieved successfully",
		Data:    entries,
	})
}
