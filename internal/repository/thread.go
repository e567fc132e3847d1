package repository

import (
	"context"
	"slices"

	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/pagination"

	"gorm.io/gorm"
)

// ThreadRefs are the distinct authors and communities referenced by a set of threads.
type ThreadRefs struct {
	AuthorIDs    []uint
	CommunityIDs []uint
}

// ThreadRepository defines persistence operations for threads.
type ThreadRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Thread, error)
	Lock(ctx context.Context, id uint, mode LockMode) (*models.Thread, error)
	Create(ctx context.Context, thread *models.Thread) error
	DeleteByIDs(ctx context.Context, ids []uint) (int64, error)
	ChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error)
	RefsOf(ctx context.Context, ids []uint) (ThreadRefs, error)
	IDsInCommunity(ctx context.Context, communityID uint) ([]uint, error)
	ListTopLevel(ctx context.Context, p pagination.Params) (pagination.Page[models.Thread], error)
	ListByAuthor(ctx context.Context, userID uint) ([]models.Thread, error)
	ListByCommunity(ctx context.Context, communityID uint) ([]models.Thread, error)
	RepliesTo(ctx context.Context, userID uint) ([]models.Thread, error)
}

type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository returns a ThreadRepository over db, which may be a transaction.
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	return first[models.Thread](r.db.WithContext(ctx).Where("id = ?", id), "get thread")
}

// Lock reads the thread with a row lock. Call it inside a transaction.
func (r *threadRepository) Lock(ctx context.Context, id uint, mode LockMode) (*models.Thread, error) {
	return first[models.Thread](locking(r.db.WithContext(ctx), mode).Where("id = ?", id), "lock thread")
}

func (r *threadRepository) Create(ctx context.Context, thread *models.Thread) error {
	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		return database.Classify("create thread", err)
	}
	return nil
}

func (r *threadRepository) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	var total int64
	for chunk := range slices.Chunk(ids, inChunk) {
		res := r.db.WithContext(ctx).Where("id IN ?", chunk).Delete(&models.Thread{})
		if res.Error != nil {
			return total, database.Classify("delete threads", res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// ChildIDs returns the ids of threads whose parent is in parentIDs. Both the
// parent pointer and the parent's children list are consulted, so a child
// missing from either side is still found.
func (r *threadRepository) ChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error) {
	var out []uint
	for chunk := range slices.Chunk(parentIDs, inChunk) {
		var byPointer, byLink []uint
		if err := r.db.WithContext(ctx).Model(&models.Thread{}).
			Where("parent_id IN ?", chunk).
			Pluck("id", &byPointer).Error; err != nil {
			return nil, database.Classify("collect children", err)
		}
		if err := r.db.WithContext(ctx).Model(&models.ThreadChild{}).
			Where("parent_id IN ?", chunk).
			Pluck("child_id", &byLink).Error; err != nil {
			return nil, database.Classify("collect children", err)
		}
		out = append(out, byPointer...)
		out = append(out, byLink...)
	}
	return pagination.Unique(out), nil
}

// RefsOf returns the distinct author and community ids over ids.
func (r *threadRepository) RefsOf(ctx context.Context, ids []uint) (ThreadRefs, error) {
	type pair struct {
		AuthorID    uint
		CommunityID *uint
	}
	var authors, communities []uint
	for chunk := range slices.Chunk(ids, inChunk) {
		var pairs []pair
		if err := r.db.WithContext(ctx).Model(&models.Thread{}).
			Distinct("author_id", "community_id").
			Where("id IN ?", chunk).
			Scan(&pairs).Error; err != nil {
			return ThreadRefs{}, database.Classify("collect thread refs", err)
		}
		for _, p := range pairs {
			authors = append(authors, p.AuthorID)
			if p.CommunityID != nil {
				communities = append(communities, *p.CommunityID)
			}
		}
	}
	return ThreadRefs{AuthorIDs: pagination.Unique(authors), CommunityIDs: pagination.Unique(communities)}, nil
}

// IDsInCommunity returns threads posted under the community, by pointer or by list entry.
func (r *threadRepository) IDsInCommunity(ctx context.Context, communityID uint) ([]uint, error) {
	var byPointer, byLink []uint
	if err := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("community_id = ?", communityID).
		Pluck("id", &byPointer).Error; err != nil {
		return nil, database.Classify("collect community threads", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.CommunityThread{}).
		Where("community_id = ?", communityID).
		Pluck("thread_id", &byLink).Error; err != nil {
		return nil, database.Classify("collect community threads", err)
	}
	return pagination.Unique(append(byPointer, byLink...)), nil
}

func (r *threadRepository) ListTopLevel(ctx context.Context, p pagination.Params) (pagination.Page[models.Thread], error) {
	q := r.db.Model(&models.Thread{}).Where("parent_id IS NULL")
	page, err := pagination.Run[models.Thread](ctx, q, p, "created_at")
	if err != nil {
		return page, database.Classify("list threads", err)
	}
	return page, nil
}

// ListByAuthor returns the user's top-level threads from their threads list, newest first.
func (r *threadRepository) ListByAuthor(ctx context.Context, userID uint) ([]models.Thread, error) {
	var threads []models.Thread
	err := r.db.WithContext(ctx).
		Joins("JOIN user_threads ON user_threads.thread_id = threads.id").
		Where("user_threads.user_id = ? AND threads.parent_id IS NULL", userID).
		Order("threads.created_at DESC, threads.id DESC").
		Find(&threads).Error
	if err != nil {
		return nil, database.Classify("list user threads", err)
	}
	return threads, nil
}

// ListByCommunity returns the threads in the community's threads list, newest first.
func (r *threadRepository) ListByCommunity(ctx context.Context, communityID uint) ([]models.Thread, error) {
	var threads []models.Thread
	err := r.db.WithContext(ctx).
		Joins("JOIN community_threads ON community_threads.thread_id = threads.id").
		Where("community_threads.community_id = ?", communityID).
		Order("threads.created_at DESC, threads.id DESC").
		Find(&threads).Error
	if err != nil {
		return nil, database.Classify("list community threads", err)
	}
	return threads, nil
}

// RepliesTo returns direct replies to any thread authored by userID, written
// by someone else, newest first.
func (r *threadRepository) RepliesTo(ctx context.Context, userID uint) ([]models.Thread, error) {
	var threads []models.Thread
	err := r.db.WithContext(ctx).
		Joins("JOIN thread_children ON thread_children.child_id = threads.id").
		Joins("JOIN threads AS parents ON parents.id = thread_children.parent_id").
		Where("parents.author_id = ? AND threads.author_id <> ?", userID, userID).
		Order("threads.created_at DESC, threads.id DESC").
		Find(&threads).Error
	if err != nil {
		return nil, database.Classify("list activity", err)
	}
	return threads, nil
}
