package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/internal/service"
	"github.com/edupanel/student-records-api/pkg/response"
)

// ExportHandler serves roster exports and the import template as downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Template godoc
// @Summary Download the CSV import template
// @Tags Export
// @Produce text/csv
// @Success 200 {file} file
// @Router /students/template [get]
func (h *ExportHandler) Template(c *gin.Context) {
	data, err := h.exports.Template()
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, "text/csv", "student_import_template.csv", data)
}

// RosterCSV godoc
// @Summary Export the roster as CSV
// @Tags Export
// @Produce text/csv
// @Param course query string false "Filter by course"
// @Param search query string false "Search filter"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /students/export/csv [get]
func (h *ExportHandler) RosterCSV(c *gin.Context) {
	data, err := h.exports.RosterCSV(c.Request.Context(), exportFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, "text/csv", exportFilename("csv"), data)
}

// RosterPDF godoc
// @Summary Export the roster as PDF
// @Tags Export
// @Produce application/pdf
// @Param course query string false "Filter by course"
// @Param search query string false "Search filter"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /students/export/pdf [get]
func (h *ExportHandler) RosterPDF(c *gin.Context) {
	data, err := h.exports.RosterPDF(c.Request.Context(), exportFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, "application/pdf", exportFilename("pdf"), data)
}

func exportFilter(c *gin.Context) models.StudentFilter {
	return models.StudentFilter{
		Course: c.Query("course"),
		Search: c.Query("search"),
	}
}

func exportFilename(ext string) string {
	return fmt.Sprintf("students_%s.%s", time.Now().UTC().Format("20060102"), ext)
}

func serveDownload(c *gin.Context, contentType, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
