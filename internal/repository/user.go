package repository

import (
	"context"

	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/validation"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserFilter narrows user listings.
type UserFilter struct {
	// ExcludeExternalID drops the viewing user from results.
	ExcludeExternalID string
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	Find(ctx context.Context, filter UserFilter, p pagination.Params) (pagination.Page[models.User], error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return first[models.User](r.db.WithContext(ctx).Where("id = ?", id), "get user")
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return first[models.User](r.db.WithContext(ctx).Where("external_id = ?", externalID), "get user")
}

// Upsert inserts the user or, when the external id exists, overwrites its
// profile fields. The stored row is read back into user.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	user.Username = validation.NormalizeHandle(user.Username)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "name", "bio", "image", "onboarded", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return database.Classify("upsert user", err)
	}

	stored, err := r.GetByExternalID(ctx, user.ExternalID)
	if err != nil {
		return err
	}
	if stored == nil {
		return models.NewNotFoundError("User", user.ExternalID)
	}
	*user = *stored
	return nil
}

func (r *userRepository) Find(ctx context.Context, filter UserFilter, p pagination.Params) (pagination.Page[models.User], error) {
	q := r.db.Model(&models.User{}).Scopes(pagination.SearchScope(p.Search, "username", "name"))
	if filter.ExcludeExternalID != "" {
		q = q.Where("external_id <> ?", filter.ExcludeExternalID)
	}
	page, err := pagination.Run[models.User](ctx, q, p, "created_at")
	if err != nil {
		return page, database.Classify("list users", err)
	}
	return page, nil
}
