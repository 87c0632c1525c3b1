package repository

import (
	"context"
	"time"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

// ReminderRepository handles reminder lookups and the two notification
// click actions: complete and snooze.
type ReminderRepository interface {
	GetReminder(ctx context.Context, id string) (*entities.Reminder, error)
	CreateReminder(ctx context.Context, reminder *entities.Reminder) error
	ListReminders(ctx context.Context, filter ReminderFilter) ([]entities.Reminder, error)
	CompleteReminder(ctx context.Context, id string, at time.Time) error
	SnoozeReminder(ctx context.Context, id string, until time.Time) error
	DeleteReminder(ctx context.Context, id string) error
}

// ReminderFilter controls reminder listing queries.
type ReminderFilter struct {
	UserUID   string
	PeriodID  string
	Completed *bool
	DueBefore time.Time
	Limit     int
}
