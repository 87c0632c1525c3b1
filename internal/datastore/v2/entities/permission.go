package entities

import "time"

// PermissionFlowState is the persisted step marker of one client's
// permission flow. Written before each transition so a reload mid-flow
// reports the last known step instead of restarting from zero.
type PermissionFlowState struct {
	ClientID  string    `gorm:"primaryKey;size:64" json:"client_id"`
	Step      string    `gorm:"size:32;not null" json:"step"`
	Reason    string    `gorm:"size:255;default:''" json:"reason"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (PermissionFlowState) TableName() string {
	return "permission_flow_states"
}

// PermissionHistoryItem is one append-only diagnostics record of a
// permission attempt. The store keeps the 50 most recent per client;
// flow logic never reads these.
type PermissionHistoryItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ClientID      string    `gorm:"size:64;not null;index" json:"client_id"`
	Timestamp     time.Time `gorm:"not null;index" json:"timestamp"`
	Result        string    `gorm:"size:32;not null" json:"result"`
	Reason        string    `gorm:"size:255;default:''" json:"reason,omitempty"`
	BrowserState  string    `gorm:"size:32;default:''" json:"browser_state"`
	TokenObtained bool      `gorm:"not null;default:false" json:"token_obtained"`
	UserAgent     string    `gorm:"size:512;default:''" json:"user_agent"`
	IOSVersion    string    `gorm:"size:32;default:''" json:"ios_version,omitempty"`
	IsPWA         bool      `gorm:"not null;default:false" json:"is_pwa"`
}

// TableName returns the table name for GORM.
func (PermissionHistoryItem) TableName() string {
	return "permission_history"
}
