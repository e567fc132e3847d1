package models

import "time"

// Thread is a post. A thread with a ParentID is a reply; replies form a
// tree rooted at a top-level thread.
type Thread struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	AuthorID    uint      `gorm:"not null;index" json:"author_id"`
	CommunityID *uint     `gorm:"index" json:"community_id,omitempty"`
	ParentID    *uint     `gorm:"index" json:"parent_id,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM.
func (Thread) TableName() string {
	return "threads"
}

// IsReply reports whether the thread answers another thread.
func (t *Thread) IsReply() bool {
	return t.ParentID != nil
}
