// Package cascade removes threads and communities together with everything
// beneath them and the link rows that point at them.
package cascade

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"agora/internal/cache"
	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/pagination"
	"agora/internal/relations"
	"agora/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const (
	batchSize = 500

	// cleanupTimeout bounds post-commit cache invalidation, which runs even
	// when the caller's context is already done.
	cleanupTimeout = 2 * time.Second
)

// Result describes what a cascade removed.
type Result struct {
	Deleted     []uint `json:"deleted"`
	Authors     []uint `json:"authors"`
	Communities []uint `json:"communities"`
	Members     []uint `json:"members,omitempty"`
}

// Engine runs cascade deletions.
type Engine struct {
	db        *gorm.DB
	relations *relations.Maintainer
	cache     *cache.Store
}

// NewEngine returns an engine. store may be nil or disabled, in which case
// no projections are invalidated.
func NewEngine(db *gorm.DB, m *relations.Maintainer, store *cache.Store) *Engine {
	return &Engine{db: db, relations: m, cache: store}
}

// CollectSubtree returns rootID followed by every descendant, level by
// level. It issues one child query per level and never recurses, so reply
// chains of any depth are safe. Ids already seen are skipped.
func (e *Engine) CollectSubtree(ctx context.Context, rootID uint) ([]uint, error) {
	return collect(ctx, repository.NewThreadRepository(e.db), []uint{rootID})
}

func collect(ctx context.Context, threads repository.ThreadRepository, roots []uint) ([]uint, error) {
	visited := make(map[uint]struct{}, len(roots))
	out := make([]uint, 0, len(roots))
	frontier := make([]uint, 0, len(roots))
	for _, id := range roots {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		out = append(out, id)
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		children, err := threads.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, err
		}
		next := frontier[:0:0]
		for _, id := range children {
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}
			out = append(out, id)
			next = append(next, id)
		}
		frontier = next
	}
	return out, nil
}

// DeleteThread removes the thread rootID, all of its descendants and every
// link row naming any of them, in one transaction. The root is also
// detached from its parent's children list. Cached projections are
// invalidated after commit; if that fails the deletion stands and a
// *models.PartialCascadeFailure lists the keys still to clear.
func (e *Engine) DeleteThread(ctx context.Context, rootID uint) (*Result, error) {
	start := time.Now()
	span, ctx := observability.NewSpan(ctx, "cascade.delete_thread", attribute.Int64("thread.id", int64(rootID)))
	defer span.End()

	var (
		result Result
		keys   []string
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		threads := repository.NewThreadRepository(tx)
		root, err := threads.Lock(ctx, rootID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if root == nil {
			return models.NewNotFoundError("Thread", rootID)
		}

		var scope keyScope
		ids, err := purge(ctx, tx, threads, []uint{root.ID}, &scope)
		if err != nil {
			return err
		}
		result = Result{Deleted: ids, Authors: pagination.Unique(scope.authors), Communities: pagination.Unique(scope.communities)}

		if err := scope.addAncestors(ctx, threads, root); err != nil {
			return err
		}
		keys, err = scope.keys(tx)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, database.Classify("delete thread", err)
	}

	observability.ObserveCascade("thread", len(result.Deleted), start)
	span.AddAttributes(attribute.Int("cascade.deleted", len(result.Deleted)))
	if err := e.invalidate(ctx, "thread", result.Deleted, keys); err != nil {
		span.SetError(err)
		return &result, err
	}
	return &result, nil
}

// DeleteCommunity removes the community, every thread posted under it with
// each thread's full reply subtree, and every link row naming any of them:
// memberships on both sides and the authors' thread lists included.
func (e *Engine) DeleteCommunity(ctx context.Context, communityID uint) (*Result, error) {
	start := time.Now()
	span, ctx := observability.NewSpan(ctx, "cascade.delete_community", attribute.Int64("community.id", int64(communityID)))
	defer span.End()

	var (
		result Result
		keys   []string
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		communities := repository.NewCommunityRepository(tx)
		community, err := communities.Lock(ctx, communityID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if community == nil {
			return models.NewNotFoundError("Community", communityID)
		}

		threads := repository.NewThreadRepository(tx)
		roots, err := threads.IDsInCommunity(ctx, communityID)
		if err != nil {
			return err
		}
		members, err := memberIDs(tx, communityID)
		if err != nil {
			return err
		}
		scope := keyScope{communities: []uint{communityID}, members: members}
		ids, err := purge(ctx, tx, threads, roots, &scope)
		if err != nil {
			return err
		}
		if keys, err = scope.keys(tx); err != nil {
			return err
		}

		for _, model := range []any{&models.CommunityThread{}, &models.CommunityMember{}, &models.UserCommunity{}} {
			if err := tx.Where("community_id = ?", communityID).Delete(model).Error; err != nil {
				return err
			}
		}
		if _, err := communities.Delete(ctx, communityID); err != nil {
			return err
		}

		result = Result{Deleted: ids, Authors: pagination.Unique(scope.authors), Communities: []uint{communityID}, Members: members}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, database.Classify("delete community", err)
	}

	observability.ObserveCascade("community", len(result.Deleted), start)
	span.AddAttributes(attribute.Int("cascade.deleted", len(result.Deleted)))
	if err := e.invalidate(ctx, "community", result.Deleted, keys); err != nil {
		span.SetError(err)
		return &result, err
	}
	return &result, nil
}

// Repair re-runs the cleanup a partial cascade left pending. It is
// idempotent.
func (e *Engine) Repair(ctx context.Context, failure *models.PartialCascadeFailure) error {
	if failure == nil || len(failure.Pending) == 0 {
		return nil
	}
	if err := e.cache.Invalidate(ctx, failure.Pending...); err != nil {
		return &models.PartialCascadeFailure{Deleted: failure.Deleted, Pending: failure.Pending, Err: err}
	}
	return nil
}

func (e *Engine) invalidate(ctx context.Context, kind string, deleted []uint, keys []string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := e.cache.Invalidate(ctx, keys...)
	if err == nil {
		return nil
	}
	observability.CascadePartialFailures.WithLabelValues(kind).Inc()
	middleware.Logger.WarnContext(ctx, "cascade committed with stale projections",
		slog.String("kind", kind),
		slog.Int("deleted", len(deleted)),
		slog.Int("pending", len(keys)),
		slog.String("error", err.Error()),
	)
	return &models.PartialCascadeFailure{Deleted: deleted, Pending: keys, Err: err}
}

// purge deletes the subtrees under roots, recording what it touched in
// scope. A writer that share-locked a thread before this transaction reached
// it commits its reply before the delete goes through; such late children
// are found by re-reading the children of everything deleted, until none
// remain.
func purge(ctx context.Context, tx *gorm.DB, threads repository.ThreadRepository, roots []uint, scope *keyScope) ([]uint, error) {
	var deleted []uint
	for len(roots) > 0 {
		ids, err := collect(ctx, threads, roots)
		if err != nil {
			return nil, err
		}
		refs, err := threads.RefsOf(ctx, ids)
		if err != nil {
			return nil, err
		}
		scope.threads = append(scope.threads, ids...)
		scope.authors = append(scope.authors, refs.AuthorIDs...)
		scope.communities = append(scope.communities, refs.CommunityIDs...)

		if err := deleteThreads(ctx, tx, threads, ids); err != nil {
			return nil, err
		}
		deleted = append(deleted, ids...)
		if roots, err = threads.ChildIDs(ctx, ids); err != nil {
			return nil, err
		}
	}
	return deleted, nil
}

// deleteThreads removes the threads in ids and every link row naming them.
func deleteThreads(ctx context.Context, tx *gorm.DB, threads repository.ThreadRepository, ids []uint) error {
	if _, err := threads.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	for batch := range slices.Chunk(ids, batchSize) {
		if err := tx.Where("parent_id IN ? OR child_id IN ?", batch, batch).Delete(&models.ThreadChild{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id IN ?", batch).Delete(&models.UserThread{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id IN ?", batch).Delete(&models.CommunityThread{}).Error; err != nil {
			return err
		}
	}
	return nil
}

func memberIDs(tx *gorm.DB, communityID uint) ([]uint, error) {
	var fromMembers, fromBackrefs []uint
	if err := tx.Model(&models.CommunityMember{}).Where("community_id = ?", communityID).Pluck("user_id", &fromMembers).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.UserCommunity{}).Where("community_id = ?", communityID).Pluck("user_id", &fromBackrefs).Error; err != nil {
		return nil, err
	}
	return pagination.Unique(append(fromMembers, fromBackrefs...)), nil
}
