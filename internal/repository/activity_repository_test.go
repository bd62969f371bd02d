package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupanel/student-records-api/internal/models"
)

func newActivityMock(t *testing.T) (*ActivityRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewActivityRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func activityRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "username", "user_email", "action", "entity_type", "entity_id", "description", "ip_address", "user_agent", "created_at"})
}

func TestActivityRepositoryAppend(t *testing.T) {
	repo, mock, cleanup := newActivityMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO activity_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.ActivityLog{
		UserID:      "u-1",
		Username:    "admin",
		UserEmail:   "admin@example.com",
		Action:      models.ActionBulkImport,
		EntityType:  models.EntityStudent,
		Description: "Bulk imported 12 students via CSV",
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryListNewestFirstWithTotal(t *testing.T) {
	repo, mock, cleanup := newActivityMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activity_logs WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery("ORDER BY created_at DESC LIMIT 50 OFFSET 0").
		WillReturnRows(activityRows().
			AddRow(2, "u-1", "admin", "a@e.com", models.ActionCreate, models.EntityStudent, nil, "Added student", "", "", time.Now()).
			AddRow(1, "u-1", "admin", "a@e.com", models.ActionLogin, "", nil, "User logged in", "", "", time.Now().Add(-time.Minute)))

	logs, total, err := repo.List(context.Background(), models.ActivityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 120, total)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionCreate, logs[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryListFilters(t *testing.T) {
	repo, mock, cleanup := newActivityMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("AND action = $1 AND entity_type = $2 AND created_at::date >= $3 AND created_at::date <= $4")).
		WithArgs(models.ActionImport, models.EntityStudent, "2024-01-01", "2024-01-31").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("LIMIT 10 OFFSET 20").
		WithArgs(models.ActionImport, models.EntityStudent, "2024-01-01", "2024-01-31").
		WillReturnRows(activityRows())

	logs, total, err := repo.List(context.Background(), models.ActivityFilter{
		Action:     models.ActionImport,
		EntityType: models.EntityStudent,
		StartDate:  "2024-01-01",
		EndDate:    "2024-01-31",
		Limit:      10,
		Offset:     20,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
