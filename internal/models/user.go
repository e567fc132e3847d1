// Package models contains data structures for the application's domain models.
package models

import "time"

// User is a person known to the external identity provider. Users are
// created and updated through an idempotent upsert keyed by ExternalID and
// are never hard-deleted.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"size:128;not null;uniqueIndex" json:"external_id"`
	Username   string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Name       string    `gorm:"size:64;not null" json:"name"`
	Image      string    `json:"image,omitempty"`
	Bio        string    `gorm:"type:text" json:"bio,omitempty"`
	Onboarded  bool      `gorm:"not null;default:false" json:"onboarded"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}
