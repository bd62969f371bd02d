package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

const dashboardCacheKey = "dash:summary"

// recentEnrollmentWindow bounds the "recent enrollments" dashboard figure.
const recentEnrollmentWindow = 30 * 24 * time.Hour

type dashboardStudentRepository interface {
	Count(ctx context.Context) (int, error)
	CountEnrolledSince(ctx context.Context, since time.Time) (int, error)
	CountByCourse(ctx context.Context) ([]models.CourseCount, error)
	Courses(ctx context.Context) ([]string, error)
}

// DashboardSummary is the landing-page payload.
type DashboardSummary struct {
	TotalStudents      int                  `json:"totalStudents"`
	RecentEnrollments  int                  `json:"recentEnrollments"`
	Courses            []string             `json:"courses"`
	CourseDistribution []models.CourseCount `json:"courseDistribution"`
	GeneratedAt        time.Time            `json:"generated_at"`
}

// DashboardService composes and caches the dashboard summary.
type DashboardService struct {
	repo     dashboardStudentRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(repo dashboardStudentRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger, now: time.Now}
}

// Summary returns the dashboard payload and whether it came from cache.
func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, bool, error) {
	var cached DashboardSummary
	if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	distribution, err := s.repo.CountByCourse(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course distribution")
	}
	courses, err := s.repo.Courses(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	recent, err := s.repo.CountEnrolledSince(ctx, s.now().UTC().Add(-recentEnrollmentWindow))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count recent enrollments")
	}

	summary := &DashboardSummary{
		TotalStudents:      total,
		RecentEnrollments:  recent,
		Courses:            courses,
		CourseDistribution: distribution,
		GeneratedAt:        s.now().UTC(),
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache dashboard summary", zap.Error(err))
	}
	return summary, false, nil
}

// InvalidateDashboard drops the cached summary after a record mutation.
func (s *DashboardService) InvalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
