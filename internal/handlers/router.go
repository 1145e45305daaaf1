package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/eduquest-hq/progression-service/internal/config"
	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
	"github.com/eduquest-hq/progression-service/internal/services"
	"github.com/eduquest-hq/progression-service/internal/utils"
	"github.com/eduquest-hq/progression-service/internal/validator"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	rewardHandler  *RewardHandler
	subjectHandler *SubjectHandler
	statsHandler   *StatsHandler
	reportHandler  *ReportHandler
	userHandler    *UserHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	repo repositories.Repository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, repo.User())

	return &HandlerManager{
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		rewardHandler:  NewRewardHandler(serviceManager.Reward(), logger),
		subjectHandler: NewSubjectHandler(repo.Subject(), logger),
		statsHandler:   NewStatsHandler(serviceManager.Stats(), logger),
		reportHandler:  NewReportHandler(serviceManager.Report(), logger),
		userHandler:    NewUserHandler(repo.User(), logger),
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Public stats for the landing page, no token required
	router.GET("/api/v1/public/stats", hm.statsHandler.GetStats)

	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Subject routes
		subjects := v1.Group("/subjects")
		{
			subjects.GET("", hm.subjectHandler.ListSubjects)
			subjects.GET("/:id", hm.subjectHandler.GetSubject)

			// Availability flips - educators and admins only
			subjects.PUT("/:id/status", hm.authMiddleware.RequireRoleMiddleware(models.RoleEducator, models.RoleAdmin), hm.subjectHandler.UpdateSubjectStatus)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/latest", hm.attemptHandler.GetLatestAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.RecordAnswer)
			attempts.PUT("/:id/progress", hm.attemptHandler.SaveProgress)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.DELETE("/:id", hm.attemptHandler.DeleteAttempt)

			// Subject-specific routes
			attempts.GET("/current/:subject_id", hm.attemptHandler.GetCurrentAttempt)
		}

		// Reward routes
		rewards := v1.Group("/rewards")
		{
			rewards.GET("/groups/:group_id/streak", hm.rewardHandler.GetStreak)
			rewards.GET("/groups/:group_id/summary", hm.rewardHandler.GetSummary)
			rewards.GET("/groups/:group_id/leaderboard", hm.rewardHandler.GetLeaderboard)
		}

		// Report routes - educators and admins only
		reports := v1.Group("/reports")
		reports.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleEducator, models.RoleAdmin))
		{
			reports.GET("/groups/:group_id/leaderboard.xlsx", hm.reportHandler.ExportLeaderboard)
		}

		// Stats routes - admins only for writes
		stats := v1.Group("/stats")
		{
			stats.GET("", hm.statsHandler.GetStats)
			stats.PUT("", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.statsHandler.UpdateStats)
		}

		// User routes
		users := v1.Group("/users")
		{
			users.GET("/me", hm.userHandler.GetMe)
			users.GET("/:id", hm.userHandler.GetUser)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "progression-service",
		})
	})
}
