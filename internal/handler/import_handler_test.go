package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupanel/student-records-api/internal/middleware"
	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/internal/service"
)

func newImportHandlerForTest(t *testing.T) (*ImportHandler, *studentRepoMock) {
	t.Helper()
	repo := newStudentRepoMock()
	svc := service.NewImportService(repo, nil, &activityRecorderMock{}, &dashboardInvalidatorMock{}, nil, nil)
	return NewImportHandler(svc, 1<<20), repo
}

func multipartUpload(t *testing.T, field, filename, content string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/students/import/csv", buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Username: "admin", Role: models.RoleAdmin})
	return c, w
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) models.ImportReport {
	t.Helper()
	var report models.ImportReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	return report
}

func TestImportHandlerCSVHappyPath(t *testing.T) {
	h, repo := newImportHandlerForTest(t)
	csv := "Student ID,Name,Email,Phone,Course,Enrollment Date\n" +
		"STD101,John Doe,john@example.com,+1234567890,Computer Science,2024-01-15\n" +
		"STD102,Jane Smith,jane@example.com,+0987654321,Engineering,2024-01-16\n"

	c, w := multipartUpload(t, "csvFile", "roster.csv", csv)
	h.ImportCSV(c)

	require.Equal(t, http.StatusOK, w.Code)
	report := decodeReport(t, w)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, "Import completed: 2 students added, 0 errors", report.Message)
	assert.Len(t, repo.sorted(), 2)
}

func TestImportHandlerCSVMissingFile(t *testing.T) {
	h, _ := newImportHandlerForTest(t)

	c, w := testContext(t, http.MethodPost, "/students/import/csv", nil)
	h.ImportCSV(c)

	require.Equal(t, http.StatusOK, w.Code)
	report := decodeReport(t, w)
	assert.False(t, report.Success)
	assert.Equal(t, "No file uploaded", report.Message)
}

func TestImportHandlerCSVRejectsWrongExtension(t *testing.T) {
	h, _ := newImportHandlerForTest(t)

	c, w := multipartUpload(t, "csvFile", "roster.xlsx", "not a csv")
	h.ImportCSV(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Invalid file type. Please upload a CSV file", decodeReport(t, w).Message)
}

func TestImportHandlerCSVRejectsOversizedFile(t *testing.T) {
	repo := newStudentRepoMock()
	svc := service.NewImportService(repo, nil, &activityRecorderMock{}, &dashboardInvalidatorMock{}, nil, nil)
	h := NewImportHandler(svc, 16)

	c, w := multipartUpload(t, "csvFile", "roster.csv", "Student ID,Name,Email,Phone,Course,Enrollment Date\n")
	h.ImportCSV(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File too large. Maximum size is 5MB", decodeReport(t, w).Message)
}

func TestImportHandlerTextMissingBody(t *testing.T) {
	h, _ := newImportHandlerForTest(t)

	c, w := testContext(t, http.MethodPost, "/students/import/text", []byte(`{}`))
	h.ImportText(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No text provided", decodeReport(t, w).Message)
}

func TestImportHandlerTextExtractsRecords(t *testing.T) {
	h, repo := newImportHandlerForTest(t)

	body, _ := json.Marshal(gin.H{"text": "STD001 John Doe john@example.com +919876543210 Computer Science 2024-01-15"})
	c, w := testContext(t, http.MethodPost, "/students/import/text", body)
	h.ImportText(c)

	require.Equal(t, http.StatusOK, w.Code)
	report := decodeReport(t, w)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Len(t, repo.sorted(), 1)
}

func TestImportHandlerTextWithoutRecordsReportsFailureOverOK(t *testing.T) {
	h, repo := newImportHandlerForTest(t)

	body, _ := json.Marshal(gin.H{"text": "quarterly attendance memo with no roster lines"})
	c, w := testContext(t, http.MethodPost, "/students/import/text", body)
	h.ImportText(c)

	require.Equal(t, http.StatusOK, w.Code)
	report := decodeReport(t, w)
	assert.False(t, report.Success)
	assert.Equal(t, "No valid student data found", report.Message)
	assert.Empty(t, repo.sorted())
}

func TestImportHandlerBulkMissingStudents(t *testing.T) {
	h, _ := newImportHandlerForTest(t)

	c, w := testContext(t, http.MethodPost, "/students/import/bulk", []byte(`{}`))
	h.ImportBulk(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No student data provided", decodeReport(t, w).Message)
}
