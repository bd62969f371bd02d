package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

func newStudentMock(t *testing.T) (*StudentRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := NewStudentRepository(sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	return repo, mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "name", "email", "phone", "course", "enrollment_date", "created_at"})
}

func expectResequence(mock sqlmock.Sqlmock, ids ...int64) {
	mock.ExpectExec("SAVEPOINT reseq").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	mock.ExpectQuery("SELECT id FROM students ORDER BY id ASC").WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET student_id = 'TMP_' || id")).
		WillReturnResult(sqlmock.NewResult(0, int64(len(ids))))
	for rank := range ids {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET student_id = $1 WHERE id = $2")).
			WithArgs(models.FormatStudentID(rank+1), ids[rank]).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("RELEASE SAVEPOINT reseq").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestStudentRepositoryList(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	rows := studentRows().
		AddRow(1, "STD001", "Jane Doe", "jane@example.com", "+911234567890", "CS", time.Now(), time.Now()).
		AddRow(2, "STD002", "Bob Roy", "bob@example.com", "+911234567891", "Math", time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM students WHERE 1=1 ORDER BY id ASC").WillReturnRows(rows)

	students, err := repo.List(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, "STD001", students[0].StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListFilters(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("AND course = $1 AND (name ILIKE $2 OR email ILIKE $2 OR student_id ILIKE $2 OR phone ILIKE $2)")).
		WithArgs("CS", "%doe%").
		WillReturnRows(studentRows())

	_, err := repo.List(context.Background(), models.StudentFilter{Course: "CS", Search: "doe"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateResequencesInSameTransaction(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO students").
		WithArgs("STD999", "Jane Doe", "jane@example.com", "+911234567890", "CS", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, time.Now()))
	expectResequence(mock, 1, 2, 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM students WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("STD003"))
	mock.ExpectCommit()

	student := &models.Student{StudentID: "STD999", Name: "Jane Doe", Email: "jane@example.com", Phone: "+911234567890", Course: "CS", EnrollmentDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.Equal(t, int64(3), student.ID)
	assert.Equal(t, "STD003", student.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateSurvivesResequenceFailure(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO students").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
	mock.ExpectExec("SAVEPOINT reseq").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM students ORDER BY id ASC").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT reseq").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM students WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("STD900"))
	mock.ExpectCommit()

	student := &models.Student{StudentID: "STD900", Name: "Jane Doe", Email: "jane@example.com", Phone: "+91", Course: "CS", EnrollmentDate: time.Now()}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateConcurrentDuplicateConflict(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO students").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "students_email_key"})
	mock.ExpectRollback()

	student := &models.Student{StudentID: "STD900", Name: "Jane Doe", Email: "jane@example.com", Phone: "+911234567890", Course: "CS", EnrollmentDate: time.Now()}
	err := repo.Create(context.Background(), student)
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Email already exists", appErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateConcurrentDuplicateConflict(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE students").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "students_student_id_key"})
	mock.ExpectRollback()

	student := &models.Student{ID: 1, StudentID: "STD001", Name: "Jane Doe", Email: "jane@example.com", Phone: "+911234567890", Course: "CS", EnrollmentDate: time.Now()}
	err := repo.Update(context.Background(), student)
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Student ID already exists", appErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDelete(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectResequence(mock, 1, 3)
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryImportBatchUpsertsAndResequencesOnce(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	rows := []models.ImportRow{
		{Line: 2, Student: models.Student{StudentID: "STD101", Name: "Jane Doe", Email: "jane@example.com"}},
		{Line: 3, Student: models.Student{StudentID: "STD102", Name: "Bob Roy", Email: "bob@example.com"}},
	}

	mock.ExpectBegin()
	for i, row := range rows {
		sp := fmt.Sprintf("SAVEPOINT import_row_%d", i)
		mock.ExpectExec(sp).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE student_id = $1 OR email = $2")).
			WithArgs(row.Student.StudentID, row.Student.Email).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("RELEASE " + sp).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	expectResequence(mock, 10, 11)
	mock.ExpectCommit()

	success, rowErrors, err := repo.ImportBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, success)
	assert.Empty(t, rowErrors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryImportBatchIsolatesRowFailures(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	rows := []models.ImportRow{
		{Line: 2, Student: models.Student{StudentID: "STD101", Name: "Jane Doe", Email: "jane@example.com"}},
		{Line: 3, Student: models.Student{StudentID: "STD102", Name: "Bob Roy", Email: "bob@example.com"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT import_row_0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM students").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO students").WillReturnError(errors.New("value too long"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT import_row_0").WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec("SAVEPOINT import_row_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM students").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT import_row_1").WillReturnResult(sqlmock.NewResult(0, 0))

	expectResequence(mock, 11)
	mock.ExpectCommit()

	success, rowErrors, err := repo.ImportBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, success)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, "Line 2: Failed to process student record", rowErrors[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryImportBatchReportsDuplicateRows(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	rows := []models.ImportRow{
		{Line: 2, Student: models.Student{StudentID: "STD101", Name: "Jane Doe", Email: "jane@example.com"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT import_row_0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM students").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO students").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "students_email_key"})
	mock.ExpectExec("ROLLBACK TO SAVEPOINT import_row_0").WillReturnResult(sqlmock.NewResult(0, 0))

	expectResequence(mock)
	mock.ExpectCommit()

	success, rowErrors, err := repo.ImportBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 0, success)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, "Line 2: Duplicate student ID or email", rowErrors[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryImportBatchAbortsOnTransactionFailure(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	rows := []models.ImportRow{{Line: 2, Student: models.Student{StudentID: "STD101", Name: "Jane Doe", Email: "jane@example.com"}}}

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT import_row_0").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := repo.ImportBatch(context.Background(), rows)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryStandaloneResequenceIsIdempotent(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		ids := sqlmock.NewRows([]string{"id"}).AddRow(4).AddRow(9)
		mock.ExpectQuery("SELECT id FROM students ORDER BY id ASC").WillReturnRows(ids)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET student_id = 'TMP_' || id")).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET student_id = $1 WHERE id = $2")).
			WithArgs("STD001", int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET student_id = $1 WHERE id = $2")).
			WithArgs("STD002", int64(9)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, repo.Resequence(context.Background()))
	require.NoError(t, repo.Resequence(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByEmail(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE email = $1 LIMIT 1")).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByEmail(context.Background(), "jane@example.com", 0)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountByCourse(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"course", "count"}).AddRow("CS", 7).AddRow("Math", 3)
	mock.ExpectQuery("SELECT course, COUNT").WillReturnRows(rows)

	counts, err := repo.CountByCourse(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.CourseCount{Course: "CS", Count: 7}, counts[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountEnrolledSince(t *testing.T) {
	repo, mock, cleanup := newStudentMock(t)
	defer cleanup()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE enrollment_date >= $1")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	total, err := repo.CountEnrolledSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
