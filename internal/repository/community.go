package repository

import (
	"context"

	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/validation"

	"gorm.io/gorm"
)

// CommunityRepository defines persistence operations for communities.
type CommunityRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Community, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Community, error)
	Lock(ctx context.Context, id uint, mode LockMode) (*models.Community, error)
	Create(ctx context.Context, community *models.Community) error
	UpdateInfo(ctx context.Context, id uint, name, username, image string) error
	Delete(ctx context.Context, id uint) (int64, error)
	Find(ctx context.Context, p pagination.Params) (pagination.Page[models.Community], error)
}

type communityRepository struct {
	db *gorm.DB
}

// NewCommunityRepository returns a CommunityRepository over db, which may be a transaction.
func NewCommunityRepository(db *gorm.DB) CommunityRepository {
	return &communityRepository{db: db}
}

func (r *communityRepository) GetByID(ctx context.Context, id uint) (*models.Community, error) {
	return first[models.Community](r.db.WithContext(ctx).Where("id = ?", id), "get community")
}

func (r *communityRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Community, error) {
	return first[models.Community](r.db.WithContext(ctx).Where("external_id = ?", externalID), "get community")
}

// Lock reads the community with a row lock. Call it inside a transaction.
func (r *communityRepository) Lock(ctx context.Context, id uint, mode LockMode) (*models.Community, error) {
	return first[models.Community](locking(r.db.WithContext(ctx), mode).Where("id = ?", id), "lock community")
}

func (r *communityRepository) Create(ctx context.Context, community *models.Community) error {
	community.Username = validation.NormalizeHandle(community.Username)
	if err := r.db.WithContext(ctx).Create(community).Error; err != nil {
		return database.Classify("create community", err)
	}
	return nil
}

// UpdateInfo overwrites the editable fields. The creator is never changed.
func (r *communityRepository) UpdateInfo(ctx context.Context, id uint, name, username, image string) error {
	res := r.db.WithContext(ctx).Model(&models.Community{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":     name,
		"username": validation.NormalizeHandle(username),
		"image":    image,
	})
	if res.Error != nil {
		return database.Classify("update community", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Community", id)
	}
	return nil
}

func (r *communityRepository) Delete(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Community{})
	if res.Error != nil {
		return 0, database.Classify("delete community", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *communityRepository) Find(ctx context.Context, p pagination.Params) (pagination.Page[models.Community], error) {
	q := r.db.Model(&models.Community{}).Scopes(pagination.SearchScope(p.Search, "username", "name"))
	page, err := pagination.Run[models.Community](ctx, q, p, "created_at")
	if err != nil {
		return page, database.Classify("list communities", err)
	}
	return page, nil
}
