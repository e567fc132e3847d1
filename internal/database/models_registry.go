package database

import "agora/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Community{},
		&models.Thread{},
		&models.UserThread{},
		&models.CommunityThread{},
		&models.ThreadChild{},
		&models.CommunityMember{},
		&models.UserCommunity{},
	}
}
