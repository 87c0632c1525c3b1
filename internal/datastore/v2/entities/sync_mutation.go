package entities

import "time"

// SyncMutation is one offline mutation queued for background sync replay.
type SyncMutation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Tag       string    `gorm:"size:64;not null;index" json:"tag"`
	Method    string    `gorm:"size:10;not null" json:"method"`
	URL       string    `gorm:"size:2048;not null" json:"url"`
	Body      string    `gorm:"type:text;default:''" json:"body"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	LastError string    `gorm:"size:1000;default:''" json:"last_error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (SyncMutation) TableName() string {
	return "sync_mutations"
}
