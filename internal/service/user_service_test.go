package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/student-records-api/internal/models"
	appErrors "github.com/edupanel/student-records-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	revoked    []string
	stats      models.UserStats
	lastRole   *models.UserRole
	lastStatus *models.UserStatus
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{}}
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(ctx context.Context) ([]models.User, error) {
	out := []models.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockUserRepo) UpdateRoleStatus(ctx context.Context, id string, role *models.UserRole, status *models.UserStatus) error {
	m.lastRole, m.lastStatus = role, status
	u := m.users[id]
	if role != nil {
		u.Role = *role
	}
	if status != nil {
		u.Status = *status
	}
	return nil
}

func (m *mockUserRepo) Stats(ctx context.Context) (*models.UserStats, error) {
	return &m.stats, nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func TestUserServiceApprovePendingAccount(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u-1"] = &models.User{ID: "u-1", Username: "newbie", Role: models.RoleUser, Status: models.StatusPending}
	activity := &mockActivity{}
	svc := NewUserService(repo, activity, validator.New(), zap.NewNop())

	status := models.StatusApproved
	updated, err := svc.Update(context.Background(), testActor(), "u-1", UpdateUserRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Empty(t, repo.revoked)
	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActionUserUpdate, activity.entries[0].Action)
}

func TestUserServiceBanRevokesSessions(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u-1"] = &models.User{ID: "u-1", Username: "banned", Role: models.RoleUser, Status: models.StatusApproved}
	svc := NewUserService(repo, &mockActivity{}, validator.New(), zap.NewNop())

	status := models.StatusBanned
	updated, err := svc.Update(context.Background(), testActor(), "u-1", UpdateUserRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusBanned, updated.Status)
	assert.Contains(t, repo.revoked, "u-1")
}

func TestUserServiceUpdateRejectsUnknownRole(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u-1"] = &models.User{ID: "u-1", Status: models.StatusApproved}
	svc := NewUserService(repo, &mockActivity{}, validator.New(), zap.NewNop())

	bad := models.UserRole("Superuser")
	_, err := svc.Update(context.Background(), testActor(), "u-1", UpdateUserRequest{Role: &bad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateNothingToDo(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), &mockActivity{}, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), testActor(), "u-1", UpdateUserRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateNotFound(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), &mockActivity{}, validator.New(), zap.NewNop())

	role := models.RoleAdmin
	_, err := svc.Update(context.Background(), testActor(), "ghost", UpdateUserRequest{Role: &role})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceStats(t *testing.T) {
	repo := newMockUserRepo()
	repo.stats = models.UserStats{TotalUsers: 10, PendingApproval: 3, ActiveUsers: 6}
	svc := NewUserService(repo, &mockActivity{}, validator.New(), zap.NewNop())

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalUsers)
	assert.Equal(t, 3, stats.PendingApproval)
}
