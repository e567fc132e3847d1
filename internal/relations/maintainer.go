// Package relations keeps both halves of every bidirectional reference in
// step: membership pairs, authored and community thread lists, and reply
// children. Every multi-row change runs in one transaction.
package relations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Maintainer writes link rows. It never logs and swallows: every failure is
// classified and returned.
type Maintainer struct {
	db *gorm.DB
}

// NewMaintainer returns a maintainer over db.
func NewMaintainer(db *gorm.DB) *Maintainer {
	return &Maintainer{db: db}
}

// Within runs fn in one transaction. A nested call joins the outer
// transaction through a savepoint.
func (m *Maintainer) Within(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}

// AddMember links user and community on both sides. It fails with an
// already-member conflict if the community already lists the user, also
// when a concurrent call added the link first; a one-sided back-reference is
// completed instead. The community row is share-locked so a concurrent
// delete cannot strand the new links.
func (m *Maintainer) AddMember(ctx context.Context, communityID, userID uint) error {
	span, ctx := observability.NewSpan(ctx, "relations.add_member",
		attribute.Int64("community.id", int64(communityID)),
		attribute.Int64("user.id", int64(userID)),
	)
	defer span.End()

	err := m.Within(ctx, func(tx *gorm.DB) error {
		c, err := repository.NewCommunityRepository(tx).Lock(ctx, communityID, repository.LockShare)
		if err != nil {
			return err
		}
		if c == nil {
			return models.NewNotFoundError("Community", communityID)
		}
		member, err := isMember(tx, communityID, userID)
		if err != nil {
			return err
		}
		if member {
			return alreadyMember(communityID, userID)
		}
		return insertMembership(tx, communityID, userID)
	})
	recordMembership("add", err)
	span.SetError(err)
	return classify("add member", err)
}

// RemoveMember unlinks user and community on both sides. It fails with
// not-found when neither side has the link; a one-sided link is removed.
func (m *Maintainer) RemoveMember(ctx context.Context, communityID, userID uint) error {
	span, ctx := observability.NewSpan(ctx, "relations.remove_member",
		attribute.Int64("community.id", int64(communityID)),
		attribute.Int64("user.id", int64(userID)),
	)
	defer span.End()

	err := m.Within(ctx, func(tx *gorm.DB) error {
		members := tx.Where("community_id = ? AND user_id = ?", communityID, userID).Delete(&models.CommunityMember{})
		if members.Error != nil {
			return members.Error
		}
		backrefs := tx.Where("user_id = ? AND community_id = ?", userID, communityID).Delete(&models.UserCommunity{})
		if backrefs.Error != nil {
			return backrefs.Error
		}
		if members.RowsAffected == 0 && backrefs.RowsAffected == 0 {
			return models.NewNotFoundError("Membership", fmt.Sprintf("%d/%d", communityID, userID))
		}
		if members.RowsAffected != backrefs.RowsAffected {
			middleware.Logger.WarnContext(ctx, "removed one-sided membership",
				slog.Uint64("community_id", uint64(communityID)),
				slog.Uint64("user_id", uint64(userID)),
			)
		}
		return nil
	})
	recordMembership("remove", err)
	span.SetError(err)
	return classify("remove member", err)
}

// AttachThread inserts a new thread together with its entry in the author's
// threads list and, when set, the community's threads list. The community
// is share-locked first and must still exist. tx must be a transaction; use
// Within to open one.
func (m *Maintainer) AttachThread(ctx context.Context, tx *gorm.DB, thread *models.Thread) error {
	if thread.ParentID != nil {
		return models.NewValidationError("replies are attached with AppendChild")
	}
	tx = tx.WithContext(ctx)
	if thread.CommunityID != nil {
		c, err := repository.NewCommunityRepository(tx).Lock(ctx, *thread.CommunityID, repository.LockShare)
		if err != nil {
			return err
		}
		if c == nil {
			return models.NewNotFoundError("Community", *thread.CommunityID)
		}
	}
	if err := repository.NewThreadRepository(tx).Create(ctx, thread); err != nil {
		return err
	}
	if err := tx.Create(&models.UserThread{UserID: thread.AuthorID, ThreadID: thread.ID}).Error; err != nil {
		return classify("link thread to author", err)
	}
	if thread.CommunityID != nil {
		if err := tx.Create(&models.CommunityThread{CommunityID: *thread.CommunityID, ThreadID: thread.ID}).Error; err != nil {
			return classify("link thread to community", err)
		}
	}
	return nil
}

// AppendChild inserts child as a reply to parentID: the child row, the
// parent's children entry and the author's threads entry. The parent is
// share-locked first and must still exist. Replies to the same parent are
// independent inserts and never overwrite each other.
func (m *Maintainer) AppendChild(ctx context.Context, tx *gorm.DB, parentID uint, child *models.Thread) error {
	tx = tx.WithContext(ctx)
	threads := repository.NewThreadRepository(tx)
	parent, err := threads.Lock(ctx, parentID, repository.LockShare)
	if err != nil {
		return err
	}
	if parent == nil {
		return models.NewNotFoundError("Thread", parentID)
	}
	child.ParentID = &parentID
	if err := threads.Create(ctx, child); err != nil {
		return err
	}
	if err := tx.Create(&models.ThreadChild{ParentID: parentID, ChildID: child.ID}).Error; err != nil {
		return classify("link reply to parent", err)
	}
	if err := tx.Create(&models.UserThread{UserID: child.AuthorID, ThreadID: child.ID}).Error; err != nil {
		return classify("link reply to author", err)
	}
	return nil
}

// ReconcileReport counts rows restored by Reconcile.
type ReconcileReport struct {
	MembersRestored  int64 `json:"members_restored"`
	BackrefsRestored int64 `json:"backrefs_restored"`
}

// Reconcile restores symmetry for every one-sided membership link. A link
// recorded on either side is treated as a membership. Links naming a
// missing user or community are left for the cascade sweep.
func (m *Maintainer) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	err := m.Within(ctx, func(tx *gorm.DB) error {
		res := tx.Exec(`INSERT INTO community_members (community_id, user_id, created_at)
			SELECT uc.community_id, uc.user_id, uc.created_at FROM user_communities uc
			WHERE NOT EXISTS (SELECT 1 FROM community_members cm WHERE cm.community_id = uc.community_id AND cm.user_id = uc.user_id)
			AND EXISTS (SELECT 1 FROM users u WHERE u.id = uc.user_id)
			AND EXISTS (SELECT 1 FROM communities c WHERE c.id = uc.community_id)`)
		if res.Error != nil {
			return res.Error
		}
		report.MembersRestored = res.RowsAffected

		res = tx.Exec(`INSERT INTO user_communities (user_id, community_id, created_at)
			SELECT cm.user_id, cm.community_id, cm.created_at FROM community_members cm
			WHERE NOT EXISTS (SELECT 1 FROM user_communities uc WHERE uc.user_id = cm.user_id AND uc.community_id = cm.community_id)
			AND EXISTS (SELECT 1 FROM users u WHERE u.id = cm.user_id)
			AND EXISTS (SELECT 1 FROM communities c WHERE c.id = cm.community_id)`)
		if res.Error != nil {
			return res.Error
		}
		report.BackrefsRestored = res.RowsAffected
		return nil
	})
	return report, classify("reconcile memberships", err)
}

func isMember(tx *gorm.DB, communityID, userID uint) (bool, error) {
	var n int64
	if err := tx.Model(&models.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// insertMembership writes both halves. The community side is a plain insert
// so a racing AddMember trips the unique index; an existing user-side row is
// kept.
func insertMembership(tx *gorm.DB, communityID, userID uint) error {
	if err := tx.Create(&models.CommunityMember{CommunityID: communityID, UserID: userID}).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return alreadyMember(communityID, userID)
		}
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserCommunity{UserID: userID, CommunityID: communityID}).Error
}

func alreadyMember(communityID, userID uint) error {
	return models.NewAlreadyMemberError(strconv.FormatUint(uint64(communityID), 10), strconv.FormatUint(uint64(userID), 10))
}

func recordMembership(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case models.IsConflict(err):
		outcome = "conflict"
	case models.IsNotFound(err):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	observability.MembershipOperations.WithLabelValues(op, outcome).Inc()
}

func classify(op string, err error) error {
	return database.Classify(op, err)
}
