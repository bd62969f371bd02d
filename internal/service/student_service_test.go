package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

// mockStudentRepo is an in-memory stand-in that mirrors the real repository's
// behaviour: every mutation renumbers displayed ids by internal-key order.
type mockStudentRepo struct {
	students    map[int64]models.Student
	nextID      int64
	resequences int
	err         error
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[int64]models.Student), nextID: 1}
}

func (m *mockStudentRepo) orderedIDs() []int64 {
	ids := make([]int64, 0, len(m.students))
	for id := range m.students {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *mockStudentRepo) renumber() {
	m.resequences++
	for rank, id := range m.orderedIDs() {
		s := m.students[id]
		s.StudentID = models.FormatStudentID(rank + 1)
		m.students[id] = s
	}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Student{}
	for _, id := range m.orderedIDs() {
		out = append(out, m.students[id])
	}
	return out, nil
}

func (m *mockStudentRepo) Courses(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	courses := []string{}
	for _, s := range m.students {
		if !seen[s.Course] {
			seen[s.Course] = true
			courses = append(courses, s.Course)
		}
	}
	sort.Strings(courses)
	return courses, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByStudentID(ctx context.Context, studentID string, excludeID int64) (bool, error) {
	for id, s := range m.students {
		if s.StudentID == studentID && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	for id, s := range m.students {
		if s.Email == email && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Count(ctx context.Context) (int, error) {
	return len(m.students), nil
}

func (m *mockStudentRepo) CountEnrolledSince(ctx context.Context, since time.Time) (int, error) {
	total := 0
	for _, s := range m.students {
		if !s.EnrollmentDate.Before(since) {
			total++
		}
	}
	return total, nil
}

func (m *mockStudentRepo) CountByCourse(ctx context.Context) ([]models.CourseCount, error) {
	byCourse := map[string]int{}
	for _, s := range m.students {
		byCourse[s.Course]++
	}
	counts := []models.CourseCount{}
	for course, n := range byCourse {
		counts = append(counts, models.CourseCount{Course: course, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Course < counts[j].Course })
	return counts, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.err != nil {
		return m.err
	}
	student.ID = m.nextID
	m.nextID++
	m.students[student.ID] = *student
	m.renumber()
	*student = m.students[student.ID]
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if m.err != nil {
		return m.err
	}
	m.students[student.ID] = *student
	m.renumber()
	*student = m.students[student.ID]
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	delete(m.students, id)
	m.renumber()
	return nil
}

func (m *mockStudentRepo) Resequence(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.renumber()
	return nil
}

func (m *mockStudentRepo) ImportBatch(ctx context.Context, rows []models.ImportRow) (int, []string, error) {
	if m.err != nil {
		return 0, nil, m.err
	}
	var rowErrors []string
	success := 0
	for _, row := range rows {
		if row.Student.Name == "fail" {
			if row.Line > 0 {
				rowErrors = append(rowErrors, fmt.Sprintf("Line %d: Failed to process student record", row.Line))
			} else {
				rowErrors = append(rowErrors, fmt.Sprintf("Error adding %s: forced failure", row.Student.Name))
			}
			continue
		}
		for id, existing := range m.students {
			if existing.StudentID == row.Student.StudentID || existing.Email == row.Student.Email {
				delete(m.students, id)
			}
		}
		student := row.Student
		student.ID = m.nextID
		m.nextID++
		m.students[student.ID] = student
		success++
	}
	m.renumber()
	return success, rowErrors, nil
}

type mockActivity struct {
	entries []models.ActivityLog
}

func (m *mockActivity) Record(ctx context.Context, actor Actor, action, entityType string, entityID *int64, description string) {
	m.entries = append(m.entries, models.ActivityLog{
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
	})
}

type mockDashboard struct {
	invalidations int
}

func (m *mockDashboard) InvalidateDashboard(ctx context.Context) {
	m.invalidations++
}

func testActor() Actor {
	return Actor{UserID: "u-1", Username: "admin", Email: "admin@example.com"}
}

func payload(n int) StudentPayload {
	return StudentPayload{
		StudentID:      fmt.Sprintf("STD%03d", 100+n),
		Name:           fmt.Sprintf("Student %d", n),
		Email:          fmt.Sprintf("student%d@example.com", n),
		Phone:          "+911234567890",
		Course:         "Computer Science",
		EnrollmentDate: "2024-01-15",
	}
}

func TestStudentServiceCreateResequences(t *testing.T) {
	repo := newMockStudentRepo()
	activity := &mockActivity{}
	dash := &mockDashboard{}
	svc := NewStudentService(repo, activity, dash, validator.New(), zap.NewNop())

	first, err := svc.Create(context.Background(), testActor(), payload(1))
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), testActor(), payload(2))
	require.NoError(t, err)

	assert.Equal(t, "STD001", first.StudentID)
	assert.Equal(t, "STD002", second.StudentID)
	assert.Equal(t, 2, dash.invalidations)
	require.Len(t, activity.entries, 2)
	assert.Equal(t, models.ActionCreate, activity.entries[0].Action)
}

func TestStudentServiceCreateDuplicateEmail(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), testActor(), payload(1))
	require.NoError(t, err)

	dup := payload(2)
	dup.Email = payload(1).Email
	_, err = svc.Create(context.Background(), testActor(), dup)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Email already exists", appErr.Message)
}

func TestStudentServiceCreateDuplicateStudentID(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), testActor(), payload(1))
	require.NoError(t, err)

	// Resequencing assigned STD001, so a second payload claiming STD001
	// collides even though the originally submitted ids differed.
	dup := payload(2)
	dup.StudentID = "STD001"
	_, err = svc.Create(context.Background(), testActor(), dup)
	require.Error(t, err)
	assert.Equal(t, "Student ID already exists", appErrors.FromError(err).Message)
}

func TestStudentServiceCreateRejectsBadDate(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	bad := payload(1)
	bad.EnrollmentDate = "2024-02-30"
	_, err := svc.Create(context.Background(), testActor(), bad)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateRejectsMissingFields(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	bad := payload(1)
	bad.Phone = ""
	_, err := svc.Create(context.Background(), testActor(), bad)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDeleteClosesGap(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	var ids []int64
	for i := 1; i <= 3; i++ {
		created, err := svc.Create(context.Background(), testActor(), payload(i))
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	deleted, err := svc.Delete(context.Background(), testActor(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], deleted.ID)

	students, _, err := svc.List(context.Background(), StudentListRequest{})
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "STD001", students[0].StudentID)
	assert.Equal(t, "STD002", students[1].StudentID)
}

func TestStudentServiceDeleteNotFound(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	_, err := svc.Delete(context.Background(), testActor(), 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateKeepsSequencePosition(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	created, err := svc.Create(context.Background(), testActor(), payload(1))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), testActor(), payload(2))
	require.NoError(t, err)

	changed := payload(1)
	changed.Name = "Renamed Student"
	changed.StudentID = "STD999"
	updated, err := svc.Update(context.Background(), testActor(), created.ID, changed)
	require.NoError(t, err)

	// The submitted displayed id is overwritten by the renumbering.
	assert.Equal(t, "STD001", updated.StudentID)
	assert.Equal(t, "Renamed Student", updated.Name)
}

func TestStudentServiceResequenceIdempotent(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, &mockActivity{}, &mockDashboard{}, validator.New(), zap.NewNop())

	for i := 1; i <= 3; i++ {
		_, err := svc.Create(context.Background(), testActor(), payload(i))
		require.NoError(t, err)
	}

	require.NoError(t, svc.Resequence(context.Background(), testActor()))
	first, _, err := svc.List(context.Background(), StudentListRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.Resequence(context.Background(), testActor()))
	second, _, err := svc.List(context.Background(), StudentListRequest{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for i, s := range second {
		assert.Equal(t, models.FormatStudentID(i+1), s.StudentID)
	}
}
