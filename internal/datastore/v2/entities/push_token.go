package entities

import "time"

// PushToken is one device registration in a user's token set.
// A (user, token) pair is unique; a token reported dead by the messaging
// service is deleted from every user that references it.
type PushToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserUID     string    `gorm:"size:128;not null;index;uniqueIndex:idx_user_token,priority:1" json:"user_uid"`
	Token       string    `gorm:"size:512;not null;index;uniqueIndex:idx_user_token,priority:2" json:"token"`
	DeviceClass string    `gorm:"size:20;default:'default'" json:"device_class"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// TableName returns the table name for GORM.
func (PushToken) TableName() string {
	return "push_tokens"
}
