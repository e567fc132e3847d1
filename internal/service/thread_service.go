package service

import (
	"context"
	"strconv"
	"strings"

	"agora/internal/cache"
	"agora/internal/cascade"
	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/validation"

	"gorm.io/gorm"
)

// ThreadService implements thread creation, replies, deletion and the feed.
type ThreadService struct {
	Deps
}

// NewThreadService returns a ThreadService.
func NewThreadService(d Deps) *ThreadService {
	return &ThreadService{Deps: d}
}

// CreateThreadInput is the payload of CreateThread. AuthorID and
// CommunityID are external ids; CommunityID may be empty.
type CreateThreadInput struct {
	Text        string
	AuthorID    string
	CommunityID string
	Path        string
}

// AddCommentInput is the payload of AddComment.
type AddCommentInput struct {
	ThreadID uint
	Text     string
	AuthorID string
	Path     string
}

// CreateThread posts a top-level thread, linking it into the author's and,
// when given, the community's thread lists.
func (s *ThreadService) CreateThread(ctx context.Context, in CreateThreadInput) (*pagination.ThreadView, error) {
	const op = "createThread"
	if err := validation.ValidateThreadText(in.Text); err != nil {
		return nil, fail(ctx, op, "thread", "", err)
	}
	if err := validation.ValidateExternalID("author_id", in.AuthorID); err != nil {
		return nil, fail(ctx, op, "thread", "", err)
	}
	in.CommunityID = strings.TrimSpace(in.CommunityID)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		author    *models.User
		community *models.Community
	)
	thread, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*models.Thread, error) {
		var err error
		if author, err = s.userByExternalID(ctx, in.AuthorID); err != nil {
			return nil, err
		}
		t := &models.Thread{Text: in.Text, AuthorID: author.ID}
		if in.CommunityID != "" {
			if community, err = s.communityByExternalID(ctx, in.CommunityID); err != nil {
				return nil, err
			}
			t.CommunityID = &community.ID
		}
		err = s.Relations.Within(ctx, func(tx *gorm.DB) error {
			return s.Relations.AttachThread(ctx, tx, t)
		})
		return t, err
	})
	if err != nil {
		return nil, fail(ctx, op, "user", in.AuthorID, err)
	}

	keys := []string{cache.UserThreadsKey(author.ExternalID)}
	if community != nil {
		keys = append(keys, cache.CommunityThreadsKey(community.ExternalID))
	}
	s.after(ctx, Change{Kind: "thread", EntityID: idString(thread.ID), Action: "created", Path: in.Path, Keys: keys})

	views, err := s.Projector.ThreadViews(ctx, []models.Thread{*thread})
	if err != nil {
		return nil, fail(ctx, op, "thread", idString(thread.ID), database.Classify(op, err))
	}
	return &views[0], nil
}

// AddComment replies to ThreadID. Replies never inherit the parent's
// community.
func (s *ThreadService) AddComment(ctx context.Context, in AddCommentInput) (*pagination.ReplyView, error) {
	const op = "addComment"
	if err := validation.ValidateThreadText(in.Text); err != nil {
		return nil, fail(ctx, op, "thread", idString(in.ThreadID), err)
	}
	if err := validation.ValidateExternalID("author_id", in.AuthorID); err != nil {
		return nil, fail(ctx, op, "thread", idString(in.ThreadID), err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var parent *models.Thread
	reply, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*models.Thread, error) {
		var err error
		if parent, err = s.threadByID(ctx, in.ThreadID); err != nil {
			return nil, err
		}
		author, err := s.userByExternalID(ctx, in.AuthorID)
		if err != nil {
			return nil, err
		}
		child := &models.Thread{Text: in.Text, AuthorID: author.ID}
		err = s.Relations.Within(ctx, func(tx *gorm.DB) error {
			return s.Relations.AppendChild(ctx, tx, parent.ID, child)
		})
		return child, err
	})
	if err != nil {
		return nil, fail(ctx, op, "thread", idString(in.ThreadID), err)
	}

	keys, err := s.ancestorKeys(ctx, parent)
	if err != nil {
		fail(ctx, op, "thread", idString(parent.ID), database.Classify(op, err))
	}
	s.after(ctx, Change{Kind: "thread", EntityID: idString(reply.ID), Action: "created", Path: in.Path, Keys: keys})

	views, err := s.Projector.Replies(ctx, []models.Thread{*reply})
	if err != nil {
		return nil, fail(ctx, op, "thread", idString(reply.ID), database.Classify(op, err))
	}
	return &views[0], nil
}

// ancestorKeys lists the projections that embed a new reply to parent.
func (s *ThreadService) ancestorKeys(ctx context.Context, parent *models.Thread) ([]string, error) {
	keys := []string{cache.ThreadKey(parent.ID)}
	if parent.ParentID != nil {
		keys = append(keys, cache.ThreadKey(*parent.ParentID))
	}
	author, err := s.Users.GetByID(ctx, parent.AuthorID)
	if err != nil {
		return keys, err
	}
	if author != nil {
		keys = append(keys, cache.UserThreadsKey(author.ExternalID))
	}
	if parent.CommunityID != nil {
		c, err := s.Communities.GetByID(ctx, *parent.CommunityID)
		if err != nil {
			return keys, err
		}
		if c != nil {
			keys = append(keys, cache.CommunityThreadsKey(c.ExternalID))
		}
	}
	return keys, nil
}

// DeleteThread removes the thread and its whole reply subtree. When the
// deletion commits but cache cleanup does not, the result is returned
// together with a *models.PartialCascadeFailure.
func (s *ThreadService) DeleteThread(ctx context.Context, id uint, path string) (*cascade.Result, error) {
	const op = "deleteThread"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var res *cascade.Result
	err := database.RetryExec(ctx, s.Retry, op, func(ctx context.Context) error {
		var err error
		res, err = s.Cascade.DeleteThread(ctx, id)
		return err
	})
	if res == nil {
		return nil, fail(ctx, op, "thread", idString(id), err)
	}
	s.after(ctx, Change{Kind: "thread", EntityID: idString(id), Action: "deleted", Path: path})
	if err != nil {
		return res, fail(ctx, op, "thread", idString(id), err)
	}
	return res, nil
}

// FetchThreadByID returns the thread page: the thread with two levels of
// replies and their authors.
func (s *ThreadService) FetchThreadByID(ctx context.Context, id uint) (*pagination.ThreadDetail, error) {
	const op = "fetchThreadById"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var detail pagination.ThreadDetail
	err := s.Cache.Aside(ctx, cache.ThreadKey(id), &detail, cache.ThreadTTL, func() error {
		d, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*pagination.ThreadDetail, error) {
			t, err := s.threadByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return s.Projector.ThreadDetail(ctx, *t)
		})
		if err != nil {
			return err
		}
		detail = *d
		return nil
	})
	if err != nil {
		return nil, fail(ctx, op, "thread", idString(id), err)
	}
	return &detail, nil
}

// ListPosts pages through top-level threads, newest first.
func (s *ThreadService) ListPosts(ctx context.Context, pageNumber, pageSize int) (pagination.Page[pagination.ThreadView], error) {
	const op = "listPosts"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := pageParams(pageNumber, pageSize, "", "")
	page, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (pagination.Page[pagination.ThreadView], error) {
		threads, err := s.Threads.ListTopLevel(ctx, p)
		if err != nil {
			return pagination.Page[pagination.ThreadView]{}, err
		}
		views, err := s.Projector.ThreadViews(ctx, threads.Items)
		if err != nil {
			return pagination.Page[pagination.ThreadView]{}, err
		}
		return pagination.Page[pagination.ThreadView]{Items: views, HasNext: threads.HasNext}, nil
	})
	if err != nil {
		return page, fail(ctx, op, "thread", "", err)
	}
	return page, nil
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
