package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/student-records-api/internal/importer"
	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/internal/service"
)

// ImportHandler exposes the bulk import endpoints. Import responses use the
// flat report shape (success/message/successCount/errorCount/errors) rather
// than the standard envelope; the client renders them verbatim.
type ImportHandler struct {
	imports     *service.ImportService
	maxFileSize int64
}

// NewImportHandler constructs ImportHandler.
func NewImportHandler(imports *service.ImportService, maxFileSize int64) *ImportHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 << 20
	}
	return &ImportHandler{imports: imports, maxFileSize: maxFileSize}
}

// Caller mistakes (missing file, bad payload) report success:false over HTTP
// 200; only a failed batch transaction surfaces as 500.
func importFailure(c *gin.Context, status int, message string) {
	c.JSON(status, models.ImportReport{Success: false, Message: message})
}

// ImportCSV godoc
// @Summary Import students from a CSV file
// @Tags Import
// @Accept multipart/form-data
// @Produce json
// @Param csvFile formData file true "CSV roster file"
// @Success 200 {object} models.ImportReport
// @Security BearerAuth
// @Router /students/import/csv [post]
func (h *ImportHandler) ImportCSV(c *gin.Context) {
	file, header, err := c.Request.FormFile("csvFile")
	if err != nil {
		importFailure(c, http.StatusOK, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		importFailure(c, http.StatusOK, "File too large. Maximum size is 5MB")
		return
	}
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		importFailure(c, http.StatusOK, "Invalid file type. Please upload a CSV file")
		return
	}

	report, err := h.imports.ImportCSV(c.Request.Context(), actorFromContext(c), file)
	if err != nil {
		importFailure(c, http.StatusInternalServerError, "Import failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

type importTextRequest struct {
	Text string `json:"text" binding:"required"`
}

// ImportText godoc
// @Summary Import students from extracted document text
// @Tags Import
// @Accept json
// @Produce json
// @Param payload body importTextRequest true "Raw extracted text"
// @Success 200 {object} models.ImportReport
// @Security BearerAuth
// @Router /students/import/text [post]
func (h *ImportHandler) ImportText(c *gin.Context) {
	var req importTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		importFailure(c, http.StatusOK, "No text provided")
		return
	}

	report, err := h.imports.ImportText(c.Request.Context(), actorFromContext(c), req.Text)
	if err != nil {
		importFailure(c, http.StatusInternalServerError, "Import failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

type importBulkRequest struct {
	Students []importer.Draft `json:"students" binding:"required"`
}

// ImportBulk godoc
// @Summary Import students from a pre-parsed draft list
// @Tags Import
// @Accept json
// @Produce json
// @Param payload body importBulkRequest true "Draft student records"
// @Success 200 {object} models.ImportReport
// @Security BearerAuth
// @Router /students/import/bulk [post]
func (h *ImportHandler) ImportBulk(c *gin.Context) {
	var req importBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		importFailure(c, http.StatusOK, "No student data provided")
		return
	}

	report, err := h.imports.ImportDrafts(c.Request.Context(), actorFromContext(c), req.Students)
	if err != nil {
		importFailure(c, http.StatusInternalServerError, "Import failed")
		return
	}
	c.JSON(http.StatusOK, report)
}
