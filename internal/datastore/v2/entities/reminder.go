package entities

import "time"

// Reminder is one scheduled reminder tied to a class period.
// The notification action endpoint completes or snoozes these.
type Reminder struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	UserUID      string     `gorm:"size:128;not null;index" json:"user_uid"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Body         string     `gorm:"size:2000;default:''" json:"body"`
	PeriodID     string     `gorm:"size:64;default:'';index" json:"period_id"`
	Priority     string     `gorm:"size:10;not null;default:'medium'" json:"priority"`
	DueAt        time.Time  `gorm:"index" json:"due_at"`
	Completed    bool       `gorm:"not null;default:false;index" json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Reminder) TableName() string {
	return "reminders"
}
