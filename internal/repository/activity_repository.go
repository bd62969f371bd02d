package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edupanel/student-records-api/internal/models"
)

// ActivityRepository persists the append-only activity trail.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts one activity entry. Entries are never updated or removed.
func (r *ActivityRepository) Append(ctx context.Context, entry *models.ActivityLog) error {
	const query = `INSERT INTO activity_logs (user_id, username, user_email, action, entity_type, entity_id, description, ip_address, user_agent)
        VALUES (:user_id, :username, :user_email, :action, :entity_type, :entity_id, :description, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}

// List returns activity entries matching the filter, newest first, together
// with the unpaged total.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error) {
	base := "FROM activity_logs WHERE 1=1"
	args := []interface{}{}

	if filter.Action != "" {
		args = append(args, filter.Action)
		base += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		base += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.StartDate != "" {
		args = append(args, filter.StartDate)
		base += fmt.Sprintf(" AND created_at::date >= $%d", len(args))
	}
	if filter.EndDate != "" {
		args = append(args, filter.EndDate)
		base += fmt.Sprintf(" AND created_at::date <= $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT id, user_id, username, user_email, action, entity_type, entity_id, description, ip_address, user_agent, created_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, limit, offset)

	logs := []models.ActivityLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}
	return logs, total, nil
}
