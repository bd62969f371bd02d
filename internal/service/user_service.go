package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateRoleStatus(ctx context.Context, id string, role *models.UserRole, status *models.UserStatus) error
	Stats(ctx context.Context) (*models.UserStats, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// UserService provides account administration for the admin panel.
type UserService struct {
	repo      userRepository
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userRepository, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// UpdateUserRequest changes a user's role and/or moderation status. Absent
// fields are left untouched.
type UpdateUserRequest struct {
	Role   *models.UserRole   `json:"role" validate:"omitempty,oneof=Admin User"`
	Status *models.UserStatus `json:"status" validate:"omitempty,oneof=Pending Approved Rejected Banned"`
}

// List returns all accounts, newest first.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, nil
}

// Update changes role and/or status of an account. Moving an account out of
// Approved revokes its refresh tokens so the ban or rejection takes effect at
// the next access-token expiry.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user update payload")
	}
	if req.Role == nil && req.Status == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.UpdateRoleStatus(ctx, id, req.Role, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if req.Status != nil && *req.Status != models.StatusApproved && user.Status == models.StatusApproved {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke refresh tokens on status change", zap.String("user_id", id), zap.Error(err))
		}
	}

	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Status != nil {
		user.Status = *req.Status
	}

	s.activity.Record(ctx, actor, models.ActionUserUpdate, models.EntityUser, nil,
		fmt.Sprintf("Updated account %s (role=%s, status=%s)", user.Username, user.Role, user.Status))
	return user, nil
}

// Stats returns aggregate account counts.
func (s *UserService) Stats(ctx context.Context) (*models.UserStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user stats")
	}
	return stats, nil
}
