package cascade

import (
	"context"
	"slices"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/repository"

	"gorm.io/gorm"
)

// keyScope gathers the entities whose cached projections a cascade makes
// stale.
type keyScope struct {
	threads     []uint
	authors     []uint
	communities []uint
	members     []uint
}

// addAncestors marks the parent and grandparent of root: their detail views
// embed root, and the parent's author and community feeds list its replies.
func (s *keyScope) addAncestors(ctx context.Context, threads repository.ThreadRepository, root *models.Thread) error {
	if root.ParentID == nil {
		return nil
	}
	parent, err := threads.GetByID(ctx, *root.ParentID)
	if err != nil || parent == nil {
		return err
	}
	s.threads = append(s.threads, parent.ID)
	s.authors = append(s.authors, parent.AuthorID)
	if parent.CommunityID != nil {
		s.communities = append(s.communities, *parent.CommunityID)
	}
	if parent.ParentID != nil {
		s.threads = append(s.threads, *parent.ParentID)
	}
	return nil
}

// keys resolves external ids and returns the cache keys to clear. It must
// run before the rows it reads are deleted.
func (s *keyScope) keys(tx *gorm.DB) ([]string, error) {
	var authorExt, memberExt, communityExt []string
	if err := pluckExternal(tx, &models.User{}, pagination.Unique(s.authors), &authorExt); err != nil {
		return nil, err
	}
	if err := pluckExternal(tx, &models.User{}, pagination.Unique(s.members), &memberExt); err != nil {
		return nil, err
	}
	if err := pluckExternal(tx, &models.Community{}, pagination.Unique(s.communities), &communityExt); err != nil {
		return nil, err
	}

	threads := pagination.Unique(s.threads)
	keys := make([]string, 0, len(threads)+len(authorExt)+len(memberExt)+2*len(communityExt))
	for _, id := range threads {
		keys = append(keys, cache.ThreadKey(id))
	}
	for _, ext := range authorExt {
		keys = append(keys, cache.UserThreadsKey(ext))
	}
	for _, ext := range memberExt {
		keys = append(keys, cache.UserKey(ext))
	}
	for _, ext := range communityExt {
		keys = append(keys, cache.CommunityKey(ext), cache.CommunityThreadsKey(ext))
	}
	return keys, nil
}

func pluckExternal(tx *gorm.DB, model any, ids []uint, dest *[]string) error {
	for batch := range slices.Chunk(ids, batchSize) {
		var ext []string
		if err := tx.Model(model).Where("id IN ?", batch).Order("id").Pluck("external_id", &ext).Error; err != nil {
			return err
		}
		*dest = append(*dest, ext...)
	}
	return nil
}
