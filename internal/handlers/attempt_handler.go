package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/services"
	"github.com/eduquest-hq/progression-service/internal/utils"
	"github.com/eduquest-hq/progression-service/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

// StartAttempt opens (or resumes) the caller's attempt on a subject
// @Summary Start attempt
// @Description Starts an attempt for a quiz or challenge, returning the existing one if already started
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.StartAttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting attempt")

	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	resp, err := h.attemptService.Start(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// RecordAnswer stores the answer for one question and reports correctness
// @Summary Record answer
// @Description Upserts the answer at a question index and grades it immediately
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param answer body services.RecordAnswerRequest true "Answer data"
// @Success 200 {object} services.RecordAnswerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/{id}/answer [post]
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Recording answer", "attempt_id", attemptID)

	var req services.RecordAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	resp, err := h.attemptService.RecordAnswer(c.Request.Context(), attemptID, userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SaveProgress saves the caller's position without grading anything
// @Summary Save progress
// @Description Persists the current question position for later resume
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param progress body services.SaveProgressRequest true "Progress data"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/{id}/progress [put]
func (h *AttemptHandler) SaveProgress(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Saving progress", "attempt_id", attemptID)

	var req services.SaveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.attemptService.SaveProgress(c.Request.Context(), attemptID, userID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Progress saved",
		Data:    gin.H{"ok": true},
	})
}

// SubmitAttempt grades the attempt and applies rewards
// @Summary Submit attempt
// @Description Grades the attempt, applies rewards once and resolves the challenge winner; safe to retry
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.SubmitResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	resp, err := h.attemptService.Submit(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAttempt retrieves one of the caller's attempts
// @Summary Get attempt
// @Description Retrieves an attempt by its ID
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptDetail
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Getting attempt", "attempt_id", attemptID)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	detail, err := h.attemptService.Get(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetCurrentAttempt retrieves the caller's open attempt on a subject
// @Summary Get current attempt
// @Description Retrieves the in-progress attempt for a subject, for resume screens
// @Tags attempts
// @Produce json
// @Param subject_id path uint true "Subject ID"
// @Success 200 {object} services.AttemptDetail
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/current/{subject_id} [get]
func (h *AttemptHandler) GetCurrentAttempt(c *gin.Context) {
	subjectID := h.parseIDParam(c, "subject_id")
	if subjectID == 0 {
		return
	}

	h.LogRequest(c, "Getting current attempt", "subject_id", subjectID)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	detail, err := h.attemptService.GetInProgress(c.Request.Context(), subjectID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetLatestAttempt retrieves the caller's most recent submitted attempt
// @Summary Get latest submitted attempt
// @Description Retrieves the most recently submitted attempt of the given kind
// @Tags attempts
// @Produce json
// @Param kind query string true "Subject kind (quiz or challenge)"
// @Success 200 {object} services.AttemptDetail
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/latest [get]
func (h *AttemptHandler) GetLatestAttempt(c *gin.Context) {
	kind := models.SubjectKind(c.Query("kind"))
	if kind != models.SubjectQuiz && kind != models.SubjectChallenge {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "kind must be quiz or challenge",
		})
		return
	}

	h.LogRequest(c, "Getting latest attempt", "kind", kind)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	detail, err := h.attemptService.GetLatestSubmitted(c.Request.Context(), userID, kind)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ListAttempts lists the caller's attempts
// @Summary List attempts
// @Description Lists the caller's attempts with optional kind and status filters
// @Tags attempts
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param kind query string false "Subject kind"
// @Param status query string false "Attempt status"
// @Success 200 {object} services.AttemptListResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	h.LogRequest(c, "Listing attempts")

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)
	req := services.AttemptListRequest{
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if kind := c.Query("kind"); kind != "" {
		subjectKind := models.SubjectKind(kind)
		req.Kind = &subjectKind
	}
	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		req.Status = &attemptStatus
	}

	resp, err := h.attemptService.List(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	totalPages := (int(resp.Total) + size - 1) / max(size, 1)
	c.JSON(http.StatusOK, gin.H{
		"data":        resp.Attempts,
		"total":       resp.Total,
		"page":        page,
		"size":        size,
		"total_pages": totalPages,
	})
}

// DeleteAttempt discards an unsubmitted attempt
// @Summary Delete attempt
// @Description Deletes an unsubmitted attempt so the student can start fresh
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /attempts/{id} [delete]
func (h *AttemptHandler) DeleteAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	h.LogRequest(c, "Deleting attempt", "attempt_id", attemptID)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.attemptService.Delete(c.Request.Context(), attemptID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Attempt deleted",
	})
}
