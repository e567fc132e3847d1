package models

import "time"

// Owned reference collections. Each row is one entry of a list owned by the
// entity named first; composite primary keys make duplicate entries
// impossible. Symmetric pairs (CommunityMember/UserCommunity) are only
// written together inside one transaction.

// UserThread is an entry of User.threads.
type UserThread struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ThreadID  uint      `gorm:"primaryKey;autoIncrement:false;index" json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (UserThread) TableName() string {
	return "user_threads"
}

// CommunityThread is an entry of Community.threads.
type CommunityThread struct {
	CommunityID uint      `gorm:"primaryKey;autoIncrement:false" json:"community_id"`
	ThreadID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"thread_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (CommunityThread) TableName() string {
	return "community_threads"
}

// ThreadChild is an entry of Thread.children, ordered by CreatedAt then ChildID.
type ThreadChild struct {
	ParentID  uint      `gorm:"primaryKey;autoIncrement:false" json:"parent_id"`
	ChildID   uint      `gorm:"primaryKey;autoIncrement:false;uniqueIndex" json:"child_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ThreadChild) TableName() string {
	return "thread_children"
}

// CommunityMember is an entry of Community.members.
type CommunityMember struct {
	CommunityID uint      `gorm:"primaryKey;autoIncrement:false" json:"community_id"`
	UserID      uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (CommunityMember) TableName() string {
	return "community_members"
}

// UserCommunity is an entry of User.communities.
type UserCommunity struct {
	UserID      uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CommunityID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"community_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (UserCommunity) TableName() string {
	return "user_communities"
}
