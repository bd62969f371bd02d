package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

type activityRepository interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error)
}

// ActivityService maintains the append-only activity trail.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
}

// NewActivityService constructs the activity service.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// Record appends one activity entry. Failures are logged and swallowed: the
// trail is advisory and must never fail the operation it describes.
func (s *ActivityService) Record(ctx context.Context, actor Actor, action, entityType string, entityID *int64, description string) {
	entry := &models.ActivityLog{
		UserID:      actor.UserID,
		Username:    actor.Username,
		UserEmail:   actor.Email,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity",
			zap.String("action", action),
			zap.String("user_id", actor.UserID),
			zap.Error(err))
	}
}

// ActivityListRequest captures activity query filters.
type ActivityListRequest struct {
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

// List returns activity entries matching the filters, newest first.
func (s *ActivityService) List(ctx context.Context, req ActivityListRequest) ([]models.ActivityLog, int, error) {
	logs, total, err := s.repo.List(ctx, models.ActivityFilter{
		Action:     req.Action,
		EntityType: req.EntityType,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	return logs, total, nil
}
