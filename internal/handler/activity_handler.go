package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/internal/service"
	"github.com/edupanel/student-records-api/pkg/response"
)

// ActivityHandler exposes the activity trail.
type ActivityHandler struct {
	activity *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary List activity entries
// @Tags Activity
// @Produce json
// @Param action query string false "Filter by action"
// @Param entity_type query string false "Filter by entity type"
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	req := service.ActivityListRequest{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		StartDate:  c.Query("start_date"),
		EndDate:    c.Query("end_date"),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		req.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		req.Offset = offset
	}

	logs, total, err := h.activity.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, &models.Pagination{
		Page:       req.Offset/max(req.Limit, 1) + 1,
		PageSize:   req.Limit,
		TotalCount: total,
	})
}
