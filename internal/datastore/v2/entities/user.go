// Package entities defines the persisted data model for the worker.
package entities

import "time"

// User is the backend record a push token set hangs off. Created lazily
// with default notification settings the first time a token is saved.
type User struct {
	UID         string    `gorm:"primaryKey;size:128" json:"uid"`
	Email       string    `gorm:"size:255;default:''" json:"email"`
	DisplayName string    `gorm:"size:255;default:''" json:"display_name"`
	PushEnabled bool      `gorm:"not null;default:true" json:"push_enabled"`
	EmailEnabled bool     `gorm:"not null;default:false" json:"email_enabled"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Tokens []PushToken `gorm:"foreignKey:UserUID;constraint:OnDelete:CASCADE" json:"tokens"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}
