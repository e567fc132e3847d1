package cascade

import (
	"context"
	"log/slog"
	"time"

	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/observability"
	"agora/internal/relations"
	"agora/internal/repository"

	"gorm.io/gorm"
)

// SweepReport counts what a sweep removed or restored.
type SweepReport struct {
	OrphanThreads    int                       `json:"orphan_threads"`
	UserThreads      int64                     `json:"user_threads"`
	CommunityThreads int64                     `json:"community_threads"`
	ThreadChildren   int64                     `json:"thread_children"`
	Memberships      int64                     `json:"memberships"`
	Reconciled       relations.ReconcileReport `json:"reconciled"`
}

// Clean reports whether the sweep found nothing to repair.
func (r SweepReport) Clean() bool {
	return r.OrphanThreads == 0 && r.UserThreads == 0 && r.CommunityThreads == 0 &&
		r.ThreadChildren == 0 && r.Memberships == 0 &&
		r.Reconciled == relations.ReconcileReport{}
}

// orphanRoots selects threads whose parent or community no longer exists.
const orphanRoots = `SELECT t.id FROM threads t
WHERE (t.parent_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM threads p WHERE p.id = t.parent_id))
   OR (t.community_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM communities c WHERE c.id = t.community_id))
ORDER BY t.id`

var danglingLinks = []struct {
	table string
	where string
}{
	{"user_threads", `NOT EXISTS (SELECT 1 FROM threads t WHERE t.id = user_threads.thread_id)
		OR NOT EXISTS (SELECT 1 FROM users u WHERE u.id = user_threads.user_id)`},
	{"community_threads", `NOT EXISTS (SELECT 1 FROM threads t WHERE t.id = community_threads.thread_id)
		OR NOT EXISTS (SELECT 1 FROM communities c WHERE c.id = community_threads.community_id)`},
	{"thread_children", `NOT EXISTS (SELECT 1 FROM threads t WHERE t.id = thread_children.parent_id)
		OR NOT EXISTS (SELECT 1 FROM threads t WHERE t.id = thread_children.child_id)`},
	{"community_members", `NOT EXISTS (SELECT 1 FROM users u WHERE u.id = community_members.user_id)
		OR NOT EXISTS (SELECT 1 FROM communities c WHERE c.id = community_members.community_id)`},
	{"user_communities", `NOT EXISTS (SELECT 1 FROM users u WHERE u.id = user_communities.user_id)
		OR NOT EXISTS (SELECT 1 FROM communities c WHERE c.id = user_communities.community_id)`},
}

// Sweep repairs the whole graph: subtrees hanging off a missing parent or
// community are deleted, link rows naming a missing entity are dropped and
// one-sided memberships are made symmetric. Running it twice changes
// nothing the second time.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	span, ctx := observability.NewSpan(ctx, "cascade.sweep")
	defer span.End()

	var (
		report  SweepReport
		removed []uint
		keys    []string
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roots []uint
		if err := tx.Raw(orphanRoots).Scan(&roots).Error; err != nil {
			return err
		}
		if len(roots) > 0 {
			var scope keyScope
			ids, err := purge(ctx, tx, repository.NewThreadRepository(tx), roots, &scope)
			if err != nil {
				return err
			}
			if keys, err = scope.keys(tx); err != nil {
				return err
			}
			removed = ids
			report.OrphanThreads = len(ids)
		}

		for _, link := range danglingLinks {
			res := tx.Exec("DELETE FROM " + link.table + " WHERE " + link.where)
			if res.Error != nil {
				return res.Error
			}
			switch link.table {
			case "user_threads":
				report.UserThreads = res.RowsAffected
			case "community_threads":
				report.CommunityThreads = res.RowsAffected
			case "thread_children":
				report.ThreadChildren = res.RowsAffected
			default:
				report.Memberships += res.RowsAffected
			}
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return report, database.Classify("sweep", err)
	}

	reconciled, err := e.relations.Reconcile(ctx)
	if err != nil {
		span.SetError(err)
		return report, err
	}
	report.Reconciled = reconciled

	if len(removed) > 0 {
		observability.ObserveCascade("sweep", len(removed), start)
		if err := e.invalidate(ctx, "sweep", removed, keys); err != nil {
			return report, err
		}
	}

	middleware.Logger.InfoContext(ctx, "sweep finished",
		slog.Int("orphan_threads", report.OrphanThreads),
		slog.Int64("user_threads", report.UserThreads),
		slog.Int64("community_threads", report.CommunityThreads),
		slog.Int64("thread_children", report.ThreadChildren),
		slog.Int64("memberships", report.Memberships),
		slog.Int64("members_restored", reconciled.MembersRestored),
		slog.Int64("backrefs_restored", reconciled.BackrefsRestored),
	)
	return report, nil
}
