package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
	"github.com/eduquest-hq/progression-service/internal/utils"
)

// SubjectHandler exposes read access to quiz and challenge definitions plus
// the status flip used by the availability scheduler. Authoring happens in
// the content service.
type SubjectHandler struct {
	BaseHandler
	subjectRepo repositories.SubjectRepository
}

func NewSubjectHandler(subjectRepo repositories.SubjectRepository, logger utils.Logger) *SubjectHandler {
	return &SubjectHandler{
		BaseHandler: NewBaseHandler(logger),
		subjectRepo: subjectRepo,
	}
}

// ListSubjects lists quiz and challenge definitions
// @Summary List subjects
// @Description Lists subjects with optional kind, status and group filters
// @Tags subjects
// @Produce json
// @Param kind query string false "Subject kind"
// @Param status query string false "Subject status"
// @Param group_id query string false "Group ID"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Success 200 {object} SuccessResponse{data=[]models.Subject}
// @Failure 500 {object} ErrorResponse
// @Router /subjects [get]
func (h *SubjectHandler) ListSubjects(c *gin.Context) {
	h.LogRequest(c, "Listing subjects")

	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)
	filters := repositories.SubjectFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if kind := c.Query("kind"); kind != "" {
		subjectKind := models.SubjectKind(kind)
		filters.Kind = &subjectKind
	}
	if status := c.Query("status"); status != "" {
		subjectStatus := models.SubjectStatus(status)
		filters.Status = &subjectStatus
	}
	if groupID := c.Query("group_id"); groupID != "" {
		filters.GroupID = &groupID
	}

	subjects, total, err := h.subjectRepo.List(c.Request.Context(), nil, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	totalPages := (int(total) + size - 1) / max(size, 1)
	c.JSON(http.StatusOK, gin.H{
		"data":        subjects,
		"total":       total,
		"page":        page,
		"size":        size,
		"total_pages": totalPages,
	})
}

// GetSubject retrieves one subject
// @Summary Get subject
// @Description Retrieves a subject by its ID
// @Tags subjects
// @Produce json
// @Param id path uint true "Subject ID"
// @Success 200 {object} models.Subject
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /subjects/{id} [get]
func (h *SubjectHandler) GetSubject(c *gin.Context) {
	subjectID := h.parseIDParam(c, "id")
	if subjectID == 0 {
		return
	}

	h.LogRequest(c, "Getting subject", "subject_id", subjectID)

	subject, err := h.subjectRepo.GetByID(c.Request.Context(), nil, subjectID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Message: "Subject not found",
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, subject)
}

// UpdateSubjectStatus flips a subject's availability
// @Summary Update subject status
// @Description Moves a subject between draft, active and closed
// @Tags subjects
// @Accept json
// @Produce json
// @Param id path uint true "Subject ID"
// @Param status body object true "New status"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /subjects/{id}/status [put]
func (h *SubjectHandler) UpdateSubjectStatus(c *gin.Context) {
	subjectID := h.parseIDParam(c, "id")
	if subjectID == 0 {
		return
	}

	var req struct {
		Status models.SubjectStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if !req.Status.IsValid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid subject status",
		})
		return
	}

	h.LogRequest(c, "Updating subject status", "subject_id", subjectID, "status", req.Status)

	if err := h.subjectRepo.UpdateStatus(c.Request.Context(), nil, subjectID, req.Status); err != nil {
		if repositories.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Message: "Subject not found",
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Subject status updated",
	})
}
