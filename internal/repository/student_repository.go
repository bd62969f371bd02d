package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

const studentColumns = "id, student_id, name, email, phone, course, enrollment_date, created_at"

// StudentRepository manages persistence for student records, including the
// displayed-identifier resequencing that runs after every mutation.
type StudentRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB, logger *zap.Logger) *StudentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentRepository{db: db, logger: logger}
}

// List returns students matching the provided filters, ordered by internal
// key so displayed identifiers appear in sequence.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE 1=1"
	args := []interface{}{}

	if filter.Course != "" && filter.Course != "all" {
		args = append(args, filter.Course)
		query += fmt.Sprintf(" AND course = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d OR student_id ILIKE $%d OR phone ILIKE $%d)", n, n, n, n)
	}
	query += " ORDER BY id ASC"

	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Courses returns the distinct course names currently in use.
func (r *StudentRepository) Courses(ctx context.Context) ([]string, error) {
	courses := []string{}
	if err := r.db.SelectContext(ctx, &courses, "SELECT DISTINCT course FROM students ORDER BY course"); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID fetches a student by internal key.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, "SELECT "+studentColumns+" FROM students WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByStudentID checks if a record with the displayed id exists,
// optionally excluding an internal key.
func (r *StudentRepository) ExistsByStudentID(ctx context.Context, studentID string, excludeID int64) (bool, error) {
	return r.exists(ctx, "student_id", studentID, excludeID)
}

// ExistsByEmail checks if a record with the email exists, optionally
// excluding an internal key.
func (r *StudentRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	return r.exists(ctx, "email", email, excludeID)
}

func (r *StudentRepository) exists(ctx context.Context, column, value string, excludeID int64) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM students WHERE %s = $1", column)
	args := []interface{}{value}
	if excludeID > 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check %s: %w", column, err)
	}
	return true, nil
}

// Count returns the total number of student records.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// CountEnrolledSince returns how many students enrolled on or after the
// given date.
func (r *StudentRepository) CountEnrolledSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	const query = "SELECT COUNT(*) FROM students WHERE enrollment_date >= $1"
	if err := r.db.GetContext(ctx, &total, query, since); err != nil {
		return 0, fmt.Errorf("count recent enrollments: %w", err)
	}
	return total, nil
}

// CountByCourse returns the per-course record distribution.
func (r *StudentRepository) CountByCourse(ctx context.Context) ([]models.CourseCount, error) {
	counts := []models.CourseCount{}
	const query = "SELECT course, COUNT(*) AS count FROM students GROUP BY course ORDER BY count DESC, course ASC"
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count by course: %w", err)
	}
	return counts, nil
}

// Create inserts a new student and renumbers all displayed identifiers within
// the same transaction. On return the student carries its internal key and
// its post-resequence displayed id.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}

	const query = `INSERT INTO students (student_id, name, email, phone, course, enrollment_date)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, query, student.StudentID, student.Name, student.Email, student.Phone, student.Course, student.EnrollmentDate)
	if err := row.Scan(&student.ID, &student.CreatedAt); err != nil {
		_ = tx.Rollback()
		return duplicateKeyError(err, "create student")
	}

	r.resequenceGuarded(ctx, tx)
	if err := r.refreshDisplayedID(ctx, tx, student); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// Update modifies an existing student and renumbers displayed identifiers in
// the same transaction.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update student: %w", err)
	}

	const query = `UPDATE students SET student_id = $1, name = $2, email = $3, phone = $4, course = $5, enrollment_date = $6 WHERE id = $7`
	if _, err := tx.ExecContext(ctx, query, student.StudentID, student.Name, student.Email, student.Phone, student.Course, student.EnrollmentDate, student.ID); err != nil {
		_ = tx.Rollback()
		return duplicateKeyError(err, "update student")
	}

	r.resequenceGuarded(ctx, tx)
	if err := r.refreshDisplayedID(ctx, tx, student); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update student: %w", err)
	}
	return nil
}

// Delete removes a student by internal key and closes the gap in the
// displayed sequence within the same transaction.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete student: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete student: %w", err)
	}

	r.resequenceGuarded(ctx, tx)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete student: %w", err)
	}
	return nil
}

// ImportBatch applies validated import rows in one transaction. Each row is
// upserted by natural key: any record sharing the draft's student_id or email
// is deleted first, then the draft is inserted fresh (replace, not merge). A
// failing row is rolled back to its savepoint and reported without aborting
// the batch; the whole sequence is renumbered exactly once at the end.
func (r *StudentRepository) ImportBatch(ctx context.Context, rows []models.ImportRow) (int, []string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin import batch: %w", err)
	}

	successCount := 0
	var rowErrors []string
	for i, row := range rows {
		sp := fmt.Sprintf("import_row_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			_ = tx.Rollback()
			return 0, nil, fmt.Errorf("savepoint import row: %w", err)
		}

		if err := upsertRow(ctx, tx, row.Student); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				_ = tx.Rollback()
				return 0, nil, fmt.Errorf("rollback import row: %w", rbErr)
			}
			rowErrors = append(rowErrors, importRowError(row, err))
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			_ = tx.Rollback()
			return 0, nil, fmt.Errorf("release import row: %w", err)
		}
		successCount++
	}

	r.resequenceGuarded(ctx, tx)

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit import batch: %w", err)
	}
	return successCount, rowErrors, nil
}

func upsertRow(ctx context.Context, tx *sqlx.Tx, student models.Student) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE student_id = $1 OR email = $2", student.StudentID, student.Email); err != nil {
		return fmt.Errorf("clear natural-key matches: %w", err)
	}
	const query = `INSERT INTO students (student_id, name, email, phone, course, enrollment_date)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, query, student.StudentID, student.Name, student.Email, student.Phone, student.Course, student.EnrollmentDate); err != nil {
		return fmt.Errorf("insert imported student: %w", err)
	}
	return nil
}

func importRowError(row models.ImportRow, err error) string {
	if IsUniqueViolation(err, "") {
		if row.Line > 0 {
			return fmt.Sprintf("Line %d: Duplicate student ID or email", row.Line)
		}
		return fmt.Sprintf("Error adding %s: duplicate student ID or email", row.Student.Name)
	}
	if row.Line > 0 {
		return fmt.Sprintf("Line %d: Failed to process student record", row.Line)
	}
	return fmt.Sprintf("Error adding %s: %v", row.Student.Name, err)
}

// Resequence renumbers all displayed identifiers in its own transaction. It
// exists as a repair path; the mutation methods already resequence inline.
func (r *StudentRepository) Resequence(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resequence: %w", err)
	}
	if err := r.resequenceTx(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resequence: %w", err)
	}
	return nil
}

// resequenceGuarded runs the renumbering inside a savepoint so a resequence
// failure never takes the triggering mutation down with it. The sequence is
// then temporarily non-contiguous until the next successful mutation repairs
// it; the failure is logged, not surfaced.
func (r *StudentRepository) resequenceGuarded(ctx context.Context, tx *sqlx.Tx) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT reseq"); err != nil {
		r.logger.Warn("resequence savepoint failed", zap.Error(err))
		return
	}
	if err := r.resequenceTx(ctx, tx); err != nil {
		r.logger.Warn("student id resequence failed", zap.Error(err))
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT reseq"); rbErr != nil {
			r.logger.Warn("resequence rollback failed", zap.Error(rbErr))
		}
		return
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT reseq"); err != nil {
		r.logger.Warn("resequence release failed", zap.Error(err))
	}
}

// resequenceTx rewrites every student_id to the record's 1-based rank by
// internal key. The rewrite is two-phase: all rows first move into the
// disjoint TMP_ namespace, then final values are assigned. A direct one-pass
// overwrite can collide with a not-yet-renumbered row under the unique
// constraint, depending on row order.
func (r *StudentRepository) resequenceTx(ctx context.Context, tx *sqlx.Tx) error {
	ids := []int64{}
	if err := tx.SelectContext(ctx, &ids, "SELECT id FROM students ORDER BY id ASC"); err != nil {
		return fmt.Errorf("load student order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE students SET student_id = 'TMP_' || id"); err != nil {
		return fmt.Errorf("stage temp ids: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE students SET student_id = $1 WHERE id = $2", models.FormatStudentID(i+1), id); err != nil {
			return fmt.Errorf("assign student id %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *StudentRepository) refreshDisplayedID(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	if err := tx.GetContext(ctx, &student.StudentID, "SELECT student_id FROM students WHERE id = $1", student.ID); err != nil {
		return fmt.Errorf("reload student id: %w", err)
	}
	return nil
}

// duplicateKeyError maps unique-constraint violations onto the user-facing
// conflict messages so a concurrent duplicate surfaces exactly like one
// caught by the pre-checks. Other errors pass through wrapped.
func duplicateKeyError(err error, op string) error {
	switch {
	case IsUniqueViolation(err, "student_id"):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "Student ID already exists")
	case IsUniqueViolation(err, "email"):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "Email already exists")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, optionally on a specific column (matched against the constraint
// name).
func IsUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return column == "" || strings.Contains(pqErr.Constraint, column)
}
