package service

import (
	"context"
	"strings"

	"agora/internal/cache"
	"agora/internal/cascade"
	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/relations"
	"agora/internal/repository"
	"agora/internal/validation"

	"gorm.io/gorm"
)

// CommunityService implements community lifecycle and membership.
type CommunityService struct {
	Deps
}

// NewCommunityService returns a CommunityService.
func NewCommunityService(d Deps) *CommunityService {
	return &CommunityService{Deps: d}
}

// CreateCommunityInput is the payload of CreateCommunity. ExternalID is
// assigned by the identity provider; CreatedBy is the creator's external id.
type CreateCommunityInput struct {
	ExternalID string
	Name       string
	Username   string
	Image      string
	Bio        string
	CreatedBy  string
	Path       string
}

// UpdateCommunityInput is the payload of UpdateCommunityInfo.
type UpdateCommunityInput struct {
	ExternalID string
	Name       string
	Username   string
	Image      string
	Path       string
}

// ListCommunitiesInput selects a page of communities.
type ListCommunitiesInput struct {
	Search     string
	PageNumber int
	PageSize   int
	Sort       string
}

// CommunityPosts is a community with the threads posted under it.
type CommunityPosts struct {
	Community pagination.CommunityRef `json:"community"`
	Threads   []pagination.ThreadView `json:"threads"`
}

// CreateCommunity creates the community with its creator as the first
// member on both sides of the membership pair.
func (s *CommunityService) CreateCommunity(ctx context.Context, in CreateCommunityInput) (*pagination.CommunityDetail, error) {
	const op = "createCommunity"
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if err := validation.ValidateExternalID("id", in.ExternalID); err != nil {
		return nil, fail(ctx, op, "community", in.ExternalID, err)
	}
	if err := validation.ValidateExternalID("created_by", in.CreatedBy); err != nil {
		return nil, fail(ctx, op, "community", in.ExternalID, err)
	}
	if err := validation.ValidateCommunity(validation.CommunityInput{Name: in.Name, Username: in.Username, Image: in.Image, Bio: in.Bio}); err != nil {
		return nil, fail(ctx, op, "community", in.ExternalID, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var creator *models.User
	community, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*models.Community, error) {
		var err error
		if creator, err = s.userByExternalID(ctx, in.CreatedBy); err != nil {
			return nil, err
		}
		c := &models.Community{
			ExternalID:  in.ExternalID,
			Name:        strings.TrimSpace(in.Name),
			Username:    in.Username,
			Image:       strings.TrimSpace(in.Image),
			Bio:         in.Bio,
			CreatedByID: creator.ID,
		}
		err = s.Relations.Within(ctx, func(tx *gorm.DB) error {
			if err := repository.NewCommunityRepository(tx).Create(ctx, c); err != nil {
				return err
			}
			return relations.NewMaintainer(tx).AddMember(ctx, c.ID, creator.ID)
		})
		return c, err
	})
	if err != nil {
		return nil, fail(ctx, op, "community", in.ExternalID, err)
	}

	s.after(ctx, Change{
		Kind: "community", EntityID: community.ExternalID, Action: "created", Path: in.Path,
		Keys: []string{cache.UserKey(creator.ExternalID)},
	})
	return s.detail(ctx, op, community)
}

func (s *CommunityService) detail(ctx context.Context, op string, c *models.Community) (*pagination.CommunityDetail, error) {
	d, err := s.Projector.CommunityDetail(ctx, *c)
	if err != nil {
		return nil, fail(ctx, op, "community", c.ExternalID, database.Classify(op, err))
	}
	return d, nil
}

// FetchCommunityDetails returns the community with its creator and members.
func (s *CommunityService) FetchCommunityDetails(ctx context.Context, id string) (*pagination.CommunityDetail, error) {
	const op = "fetchCommunityDetails"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var detail pagination.CommunityDetail
	err := s.Cache.Aside(ctx, cache.CommunityKey(id), &detail, cache.CommunityTTL, func() error {
		d, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*pagination.CommunityDetail, error) {
			c, err := s.communityByExternalID(ctx, id)
			if err != nil {
				return nil, err
			}
			return s.Projector.CommunityDetail(ctx, *c)
		})
		if err != nil {
			return err
		}
		detail = *d
		return nil
	})
	if err != nil {
		return nil, fail(ctx, op, "community", id, err)
	}
	return &detail, nil
}

// FetchCommunityPosts returns every thread in the community's thread list,
// newest first, each with its author and direct replies.
func (s *CommunityService) FetchCommunityPosts(ctx context.Context, id string) (*CommunityPosts, error) {
	const op = "fetchCommunityPosts"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var posts CommunityPosts
	err := s.Cache.Aside(ctx, cache.CommunityThreadsKey(id), &posts, cache.ListTTL, func() error {
		p, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*CommunityPosts, error) {
			c, err := s.communityByExternalID(ctx, id)
			if err != nil {
				return nil, err
			}
			threads, err := s.Threads.ListByCommunity(ctx, c.ID)
			if err != nil {
				return nil, err
			}
			views, err := s.Projector.ThreadViews(ctx, threads)
			if err != nil {
				return nil, err
			}
			return &CommunityPosts{
				Community: pagination.CommunityRef{ID: c.ID, ExternalID: c.ExternalID, Name: c.Name, Username: c.Username, Image: c.Image},
				Threads:   views,
			}, nil
		})
		if err != nil {
			return err
		}
		posts = *p
		return nil
	})
	if err != nil {
		return nil, fail(ctx, op, "community", id, err)
	}
	return &posts, nil
}

// ListCommunities pages through communities matching Search on name or
// username.
func (s *CommunityService) ListCommunities(ctx context.Context, in ListCommunitiesInput) (pagination.Page[pagination.CommunitySummary], error) {
	const op = "listCommunities"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := pageParams(in.PageNumber, in.PageSize, in.Search, in.Sort)
	page, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (pagination.Page[pagination.CommunitySummary], error) {
		communities, err := s.Communities.Find(ctx, p)
		if err != nil {
			return pagination.Page[pagination.CommunitySummary]{}, err
		}
		summaries, err := s.Projector.CommunitySummaries(ctx, communities.Items)
		if err != nil {
			return pagination.Page[pagination.CommunitySummary]{}, err
		}
		return pagination.Page[pagination.CommunitySummary]{Items: summaries, HasNext: communities.HasNext}, nil
	})
	if err != nil {
		return page, fail(ctx, op, "community", "", err)
	}
	return page, nil
}

// AddMemberToCommunity links the user and community on both sides.
func (s *CommunityService) AddMemberToCommunity(ctx context.Context, communityID, userID, path string) error {
	return s.membership(ctx, "addMemberToCommunity", communityID, userID, path, "member_added", s.Relations.AddMember)
}

// RemoveUserFromCommunity unlinks the user and community on both sides.
func (s *CommunityService) RemoveUserFromCommunity(ctx context.Context, communityID, userID, path string) error {
	return s.membership(ctx, "removeUserFromCommunity", communityID, userID, path, "member_removed", s.Relations.RemoveMember)
}

func (s *CommunityService) membership(
	ctx context.Context,
	op, communityID, userID, path, action string,
	apply func(ctx context.Context, communityID, userID uint) error,
) error {
	if err := validation.ValidateExternalID("user_id", userID); err != nil {
		return fail(ctx, op, "community", communityID, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := database.RetryExec(ctx, s.Retry, op, func(ctx context.Context) error {
		c, err := s.communityByExternalID(ctx, communityID)
		if err != nil {
			return err
		}
		u, err := s.userByExternalID(ctx, userID)
		if err != nil {
			return err
		}
		return apply(ctx, c.ID, u.ID)
	})
	if err != nil {
		return fail(ctx, op, "community", communityID, err)
	}
	s.after(ctx, Change{
		Kind: "community", EntityID: communityID, Action: action, Path: path,
		Keys: []string{cache.CommunityKey(communityID), cache.UserKey(userID)},
	})
	return nil
}

// UpdateCommunityInfo overwrites name, username and image. The creator and
// bio are left as they are.
func (s *CommunityService) UpdateCommunityInfo(ctx context.Context, in UpdateCommunityInput) (*pagination.CommunityDetail, error) {
	const op = "updateCommunityInfo"
	if err := validation.ValidateCommunity(validation.CommunityInput{Name: in.Name, Username: in.Username, Image: in.Image}); err != nil {
		return nil, fail(ctx, op, "community", in.ExternalID, err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	community, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*models.Community, error) {
		c, err := s.communityByExternalID(ctx, in.ExternalID)
		if err != nil {
			return nil, err
		}
		name, username, image := strings.TrimSpace(in.Name), validation.NormalizeHandle(in.Username), strings.TrimSpace(in.Image)
		if err := s.Communities.UpdateInfo(ctx, c.ID, name, username, image); err != nil {
			return nil, err
		}
		c.Name, c.Username, c.Image = name, username, image
		return c, nil
	})
	if err != nil {
		return nil, fail(ctx, op, "community", in.ExternalID, err)
	}

	detail, err := s.detail(ctx, op, community)
	if err != nil {
		return nil, err
	}
	keys := []string{cache.CommunityKey(community.ExternalID), cache.CommunityThreadsKey(community.ExternalID)}
	for _, m := range detail.Members {
		keys = append(keys, cache.UserKey(m.ExternalID))
	}
	threadKeys, err := s.threadKeys(ctx, community.ID)
	if err != nil {
		return nil, fail(ctx, op, "community", community.ExternalID, database.Classify(op, err))
	}
	keys = append(keys, threadKeys...)
	s.after(ctx, Change{Kind: "community", EntityID: community.ExternalID, Action: "updated", Path: in.Path, Keys: keys})
	return detail, nil
}

// threadKeys lists the cached thread views that embed the community's
// reference: each of its threads and each author's thread list.
func (s *CommunityService) threadKeys(ctx context.Context, communityID uint) ([]string, error) {
	ids, err := s.Threads.IDsInCommunity(ctx, communityID)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	refs, err := s.Threads.RefsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	authors, err := s.Projector.Authors(ctx, refs.AuthorIDs)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(ids)+len(authors))
	for _, id := range ids {
		keys = append(keys, cache.ThreadKey(id))
	}
	for _, a := range authors {
		keys = append(keys, cache.UserThreadsKey(a.ExternalID))
	}
	return keys, nil
}

// DeleteCommunity removes the community, its threads with their reply
// subtrees and every link naming them.
func (s *CommunityService) DeleteCommunity(ctx context.Context, id, path string) (*cascade.Result, error) {
	const op = "deleteCommunity"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var res *cascade.Result
	err := database.RetryExec(ctx, s.Retry, op, func(ctx context.Context) error {
		c, err := s.communityByExternalID(ctx, id)
		if err != nil {
			return err
		}
		res, err = s.Cascade.DeleteCommunity(ctx, c.ID)
		return err
	})
	if res == nil {
		return nil, fail(ctx, op, "community", id, err)
	}
	s.after(ctx, Change{Kind: "community", EntityID: id, Action: "deleted", Path: path})
	if err != nil {
		return res, fail(ctx, op, "community", id, err)
	}
	return res, nil
}
