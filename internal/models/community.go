package models

import "time"

// Community is a named group users join and post into.
type Community struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExternalID  string    `gorm:"size:128;not null;uniqueIndex" json:"external_id"`
	Username    string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Name        string    `gorm:"size:120;not null" json:"name"`
	Image       string    `json:"image,omitempty"`
	Bio         string    `gorm:"type:text" json:"bio,omitempty"`
	CreatedByID uint      `gorm:"not null;index" json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Community) TableName() string {
	return "communities"
}
