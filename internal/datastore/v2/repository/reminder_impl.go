package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/errors"
)

// reminderRepository implements ReminderRepository.
type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository creates a new ReminderRepository.
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

// GetReminder returns a reminder by ID.
// Returns ErrReminderNotFound if the ID does not exist.
func (r *reminderRepository) GetReminder(ctx context.Context, id string) (*entities.Reminder, error) {
	var reminder entities.Reminder
	if err := r.db.WithContext(ctx).First(&reminder, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("failed to get reminder %s: %w", id, err)
	}
	return &reminder, nil
}

// CreateReminder creates a new reminder.
func (r *reminderRepository) CreateReminder(ctx context.Context, reminder *entities.Reminder) error {
	if err := r.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// ListReminders returns reminders matching the filter, due-date ascending.
func (r *reminderRepository) ListReminders(ctx context.Context, filter ReminderFilter) ([]entities.Reminder, error) {
	var reminders []entities.Reminder
	query := r.db.WithContext(ctx)

	if filter.UserUID != "" {
		query = query.Where("user_uid = ?", filter.UserUID)
	}
	if filter.PeriodID != "" {
		query = query.Where("period_id = ?", filter.PeriodID)
	}
	if filter.Completed != nil {
		query = query.Where("completed = ?", *filter.Completed)
	}
	if !filter.DueBefore.IsZero() {
		query = query.Where("due_at < ?", filter.DueBefore)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Order("due_at ASC").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

// CompleteReminder marks a reminder done at the given time.
func (r *reminderRepository) CompleteReminder(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]any{"completed": true, "completed_at": at})
	if result.Error != nil {
		return fmt.Errorf("failed to complete reminder %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// SnoozeReminder pushes a reminder's next notification out to the given time.
func (r *reminderRepository) SnoozeReminder(ctx context.Context, id string, until time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.Reminder{}).
		Where("id = ?", id).
		Update("snoozed_until", until)
	if result.Error != nil {
		return fmt.Errorf("failed to snooze reminder %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// DeleteReminder removes a reminder.
func (r *reminderRepository) DeleteReminder(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&entities.Reminder{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete reminder %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}
