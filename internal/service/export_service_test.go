package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
)

func TestExportServiceTemplate(t *testing.T) {
	svc := NewExportService(newMockStudentRepo(), nil, nil, zap.NewNop())

	data, err := svc.Template()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "student_id,name,email,phone,course,enrollment_date", lines[0])
	assert.Contains(t, lines[1], "STD101")
	assert.Contains(t, lines[1], "john.doe@example.com")
}

func TestExportServiceRosterCSV(t *testing.T) {
	repo := newMockStudentRepo()
	for i := 1; i <= 2; i++ {
		student := studentFromPayload(payload(i))
		require.NoError(t, repo.Create(context.Background(), &student))
	}
	svc := NewExportService(repo, nil, nil, zap.NewNop())

	data, err := svc.RosterCSV(context.Background(), models.StudentFilter{})
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "STD001")
	assert.Contains(t, out, "student1@example.com")
	assert.Contains(t, out, "2024-01-15")
}

func TestExportServiceRosterPDF(t *testing.T) {
	repo := newMockStudentRepo()
	student := studentFromPayload(payload(1))
	require.NoError(t, repo.Create(context.Background(), &student))
	svc := NewExportService(repo, nil, nil, zap.NewNop())

	data, err := svc.RosterPDF(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
