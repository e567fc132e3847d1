package service

import (
	"context"
	"strings"

	"agora/internal/cache"
	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/repository"
	"agora/internal/validation"
)

// UserService implements profile reads, the onboarding upsert and activity.
type UserService struct {
	Deps
}

// NewUserService returns a UserService.
func NewUserService(d Deps) *UserService {
	return &UserService{Deps: d}
}

// UpdateUserInput is the payload of UpdateUser.
type UpdateUserInput struct {
	ExternalID string
	Username   string
	Name       string
	Bio        string
	Image      string
	Path       string
}

// ListUsersInput selects a page of users. ExcludeUserID, when set, drops
// the viewing user from the results.
type ListUsersInput struct {
	ExcludeUserID string
	Search        string
	PageNumber    int
	PageSize      int
	Sort          string
}

// UserPosts is a user with their top-level threads.
type UserPosts struct {
	User    pagination.AuthorRef    `json:"user"`
	Threads []pagination.ThreadView `json:"threads"`
}

// FetchUser returns the profile with the communities the user belongs to.
func (s *UserService) FetchUser(ctx context.Context, id string) (*pagination.UserProfile, error) {
	const op = "fetchUser"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var profile pagination.UserProfile
	err := s.Cache.Aside(ctx, cache.UserKey(id), &profile, cache.UserTTL, func() error {
		p, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*pagination.UserProfile, error) {
			u, err := s.userByExternalID(ctx, id)
			if err != nil {
				return nil, err
			}
			return s.Projector.UserProfile(ctx, *u)
		})
		if err != nil {
			return err
		}
		profile = *p
		return nil
	})
	if err != nil {
		return nil, fail(ctx, op, "user", id, err)
	}
	return &profile, nil
}

// UpdateUser creates or overwrites the profile keyed by ExternalID and
// marks the user onboarded. Repeating a call with the same payload leaves
// the stored user unchanged.
func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*pagination.UserSummary, error) {
	const op = "updateUser"
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Username = validation.NormalizeHandle(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Image = strings.TrimSpace(in.Image)
	if err := validation.ValidateUser(validation.UserInput{
		ExternalID: in.ExternalID, Username: in.Username, Name: in.Name, Bio: in.Bio, Image: in.Image,
	}); err != nil {
		return nil, fail(ctx, op, "user", in.ExternalID, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	changed := false
	user, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*models.User, error) {
		existing, err := s.Users.GetByExternalID(ctx, in.ExternalID)
		if err != nil {
			return nil, err
		}
		if existing != nil && sameProfile(existing, in) {
			return existing, nil
		}
		u := &models.User{
			ExternalID: in.ExternalID,
			Username:   in.Username,
			Name:       in.Name,
			Bio:        in.Bio,
			Image:      in.Image,
			Onboarded:  true,
		}
		if err := s.Users.Upsert(ctx, u); err != nil {
			return nil, err
		}
		changed = true
		return u, nil
	})
	if err != nil {
		return nil, fail(ctx, op, "user", in.ExternalID, err)
	}

	if changed {
		s.after(ctx, Change{
			Kind: "user", EntityID: user.ExternalID, Action: "updated", Path: in.Path,
			Keys: []string{cache.UserKey(user.ExternalID), cache.UserThreadsKey(user.ExternalID)},
		})
	}
	summary := pagination.UserSummaryOf(*user)
	return &summary, nil
}

func sameProfile(u *models.User, in UpdateUserInput) bool {
	return u.Onboarded &&
		u.Username == in.Username &&
		u.Name == in.Name &&
		u.Bio == in.Bio &&
		u.Image == in.Image
}

// FetchUserPosts returns the user's top-level threads, newest first, each
// with its community and direct replies.
func (s *UserService) FetchUserPosts(ctx context.Context, id string) (*UserPosts, error) {
	const op = "fetchUserPosts"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var posts UserPosts
	err := s.Cache.Aside(ctx, cache.UserThreadsKey(id), &posts, cache.ListTTL, func() error {
		p, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (*UserPosts, error) {
			u, err := s.userByExternalID(ctx, id)
			if err != nil {
				return nil, err
			}
			threads, err := s.Threads.ListByAuthor(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			views, err := s.Projector.ThreadViews(ctx, threads)
			if err != nil {
				return nil, err
			}
			return &UserPosts{
				User:    pagination.AuthorRef{ID: u.ID, ExternalID: u.ExternalID, Name: u.Name, Username: u.Username, Image: u.Image},
				Threads: views,
			}, nil
		})
		if err != nil {
			return err
		}
		posts = *p
		return nil
	})
	if err != nil {
		return nil, fail(ctx, op, "user", id, err)
	}
	return &posts, nil
}

// ListUsers pages through users matching Search on username or name.
func (s *UserService) ListUsers(ctx context.Context, in ListUsersInput) (pagination.Page[pagination.UserSummary], error) {
	const op = "listUsers"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := pageParams(in.PageNumber, in.PageSize, in.Search, in.Sort)
	filter := repository.UserFilter{ExcludeExternalID: strings.TrimSpace(in.ExcludeUserID)}
	page, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) (pagination.Page[pagination.UserSummary], error) {
		users, err := s.Users.Find(ctx, filter, p)
		if err != nil {
			return pagination.Page[pagination.UserSummary]{}, err
		}
		return pagination.Map(users, pagination.UserSummaryOf), nil
	})
	if err != nil {
		return page, fail(ctx, op, "user", "", err)
	}
	return page, nil
}

// GetActivity returns replies other users left on the user's threads,
// newest first.
func (s *UserService) GetActivity(ctx context.Context, id string) ([]pagination.ActivityItem, error) {
	const op = "getActivity"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := database.Retry(ctx, s.Retry, op, func(ctx context.Context) ([]pagination.ActivityItem, error) {
		u, err := s.userByExternalID(ctx, id)
		if err != nil {
			return nil, err
		}
		replies, err := s.Threads.RepliesTo(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		return s.Projector.Replies(ctx, replies)
	})
	if err != nil {
		return nil, fail(ctx, op, "user", id, err)
	}
	if items == nil {
		items = []pagination.ActivityItem{}
	}
	return items, nil
}
