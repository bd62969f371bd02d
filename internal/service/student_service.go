package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	Courses(ctx context.Context) ([]string, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ExistsByStudentID(ctx context.Context, studentID string, excludeID int64) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id int64) error
	Resequence(ctx context.Context) error
}

type activityRecorder interface {
	Record(ctx context.Context, actor Actor, action, entityType string, entityID *int64, description string)
}

type dashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context)
}

// Actor identifies the authenticated user performing an operation, as recorded
// in the activity trail.
type Actor struct {
	UserID    string
	Username  string
	Email     string
	IPAddress string
	UserAgent string
}

// StudentService coordinates student record workflows. Every mutation
// renumbers the displayed identifiers, so callers must treat student_id values
// as positional labels rather than stable references.
type StudentService struct {
	repo      studentRepository
	activity  activityRecorder
	dashboard dashboardInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, activity activityRecorder, dashboard dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, activity: activity, dashboard: dashboard, validator: validate, logger: logger}
}

// StudentListRequest captures list filters.
type StudentListRequest struct {
	Course string `json:"course"`
	Search string `json:"search"`
}

// StudentPayload is the create/update request body.
type StudentPayload struct {
	StudentID      string `json:"student_id" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required"`
	Course         string `json:"course" validate:"required"`
	EnrollmentDate string `json:"enrollment_date" validate:"required"`
}

// List returns students matching the filters plus the distinct course names
// for filter dropdowns.
func (s *StudentService) List(ctx context.Context, req StudentListRequest) ([]models.Student, []string, error) {
	students, err := s.repo.List(ctx, models.StudentFilter{Course: req.Course, Search: req.Search})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	courses, err := s.repo.Courses(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return students, courses, nil
}

// Get returns one student by internal key.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a student record. The displayed id the caller submits is only
// provisional: the post-insert renumbering assigns the final value.
func (s *StudentService) Create(ctx context.Context, actor Actor, req StudentPayload) (*models.Student, error) {
	student, err := s.validatePayload(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, storageError(err, "failed to create student")
	}
	s.activity.Record(ctx, actor, models.ActionCreate, models.EntityStudent, &student.ID, fmt.Sprintf("Added student %s (%s)", student.Name, student.StudentID))
	s.dashboard.InvalidateDashboard(ctx)
	return student, nil
}

// Update modifies an existing student record and renumbers the sequence.
func (s *StudentService) Update(ctx context.Context, actor Actor, id int64, req StudentPayload) (*models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	student, err := s.validatePayload(ctx, req, id)
	if err != nil {
		return nil, err
	}
	student.ID = id
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, storageError(err, "failed to update student")
	}
	s.activity.Record(ctx, actor, models.ActionUpdate, models.EntityStudent, &student.ID, fmt.Sprintf("Updated student %s (%s)", student.Name, student.StudentID))
	s.dashboard.InvalidateDashboard(ctx)
	return student, nil
}

// Delete removes a student record, closes the gap in the sequence, and
// returns the record as it was before deletion.
func (s *StudentService) Delete(ctx context.Context, actor Actor, id int64) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.activity.Record(ctx, actor, models.ActionDelete, models.EntityStudent, &id, fmt.Sprintf("Deleted student %s (%s)", student.Name, student.StudentID))
	s.dashboard.InvalidateDashboard(ctx)
	return student, nil
}

// Resequence renumbers all displayed ids. Mutations already do this inline;
// the endpoint exists as a repair path for sequences broken by a guarded
// resequence failure.
func (s *StudentService) Resequence(ctx context.Context, actor Actor) error {
	if err := s.repo.Resequence(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resequence student ids")
	}
	s.activity.Record(ctx, actor, models.ActionResequence, models.EntityStudent, nil, "Resequenced student IDs")
	s.dashboard.InvalidateDashboard(ctx)
	return nil
}

func (s *StudentService) validatePayload(ctx context.Context, req StudentPayload, excludeID int64) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "All fields are required")
	}
	enrollmentDate, err := time.Parse("2006-01-02", req.EnrollmentDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid enrollment date (use YYYY-MM-DD)")
	}

	exists, err := s.repo.ExistsByStudentID(ctx, req.StudentID, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Student ID already exists")
	}
	exists, err = s.repo.ExistsByEmail(ctx, req.Email, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Email already exists")
	}

	return &models.Student{
		StudentID:      req.StudentID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Course:         req.Course,
		EnrollmentDate: enrollmentDate,
	}, nil
}

// storageError keeps typed errors from the repository (duplicate-key
// conflicts detected at commit time) and wraps everything else as internal.
func storageError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
