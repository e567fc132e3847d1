package seed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/service"

	"gorm.io/gorm"
)

// Report counts what a run created.
type Report struct {
	Users       int `json:"users"`
	Communities int `json:"communities"`
	Memberships int `json:"memberships"`
	Threads     int `json:"threads"`
	Replies     int `json:"replies"`
}

// Seeder drives the services with factory-built inputs.
type Seeder struct {
	db          *gorm.DB
	plan        Plan
	factory     *Factory
	users       *service.UserService
	communities *service.CommunityService
	threads     *service.ThreadService
}

// NewSeeder binds a plan to the services built from deps.
func NewSeeder(deps service.Deps, plan Plan) *Seeder {
	return &Seeder{
		db:          deps.DB,
		plan:        plan,
		factory:     NewFactory(plan.RandSeed),
		users:       service.NewUserService(deps),
		communities: service.NewCommunityService(deps),
		threads:     service.NewThreadService(deps),
	}
}

// node is a thread in a reply tree being grown.
type node struct {
	id    uint
	depth int
}

// Run executes the plan.
func (s *Seeder) Run(ctx context.Context) (Report, error) {
	var rep Report
	if err := s.plan.Validate(); err != nil {
		return rep, err
	}
	if s.plan.Clean {
		if err := ClearAll(ctx, s.db); err != nil {
			return rep, err
		}
	}

	users := make([]string, 0, s.plan.Users)
	for range s.plan.Users {
		u, err := s.users.UpdateUser(ctx, s.factory.User())
		if err != nil {
			return rep, fmt.Errorf("seed user: %w", err)
		}
		users = append(users, u.ExternalID)
		rep.Users++
	}

	communities := make([]string, 0, s.plan.Communities)
	for range s.plan.Communities {
		creator := users[s.factory.Intn(len(users))]
		c, err := s.communities.CreateCommunity(ctx, s.factory.Community(creator))
		if err != nil {
			return rep, fmt.Errorf("seed community: %w", err)
		}
		communities = append(communities, c.ExternalID)
		rep.Communities++
		rep.Memberships++

		n, err := s.addMembers(ctx, c.ExternalID, users)
		rep.Memberships += n
		if err != nil {
			return rep, err
		}
	}

	for range s.plan.Threads {
		in := service.CreateThreadInput{
			Text:     s.factory.ThreadText(),
			AuthorID: users[s.factory.Intn(len(users))],
		}
		// roughly a third of threads are posted outside any community
		if len(communities) > 0 && s.factory.Intn(3) > 0 {
			in.CommunityID = communities[s.factory.Intn(len(communities))]
		}
		th, err := s.threads.CreateThread(ctx, in)
		if err != nil {
			return rep, fmt.Errorf("seed thread: %w", err)
		}
		rep.Threads++

		n, err := s.growReplies(ctx, th.ID, users)
		rep.Replies += n
		if err != nil {
			return rep, err
		}
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", rep.Users),
		slog.Int("communities", rep.Communities),
		slog.Int("memberships", rep.Memberships),
		slog.Int("threads", rep.Threads),
		slog.Int("replies", rep.Replies),
	)
	return rep, nil
}

func (s *Seeder) addMembers(ctx context.Context, community string, users []string) (int, error) {
	added := 0
	for range s.plan.MembersPerCommunity {
		user := users[s.factory.Intn(len(users))]
		err := s.communities.AddMemberToCommunity(ctx, community, user, "")
		switch {
		case models.CodeOf(err) == models.CodeAlreadyMember:
		case err != nil:
			return added, fmt.Errorf("seed membership: %w", err)
		default:
			added++
		}
	}
	return added, nil
}

// growReplies attaches replies under random nodes of the tree rooted at
// root, never deeper than MaxDepth.
func (s *Seeder) growReplies(ctx context.Context, root uint, users []string) (int, error) {
	tree := []node{{id: root}}
	added := 0
	for range s.plan.RepliesPerThread {
		open := slices.DeleteFunc(slices.Clone(tree), func(n node) bool { return n.depth >= s.plan.MaxDepth })
		if len(open) == 0 {
			break
		}
		parent := open[s.factory.Intn(len(open))]
		reply, err := s.threads.AddComment(ctx, service.AddCommentInput{
			ThreadID: parent.id,
			Text:     s.factory.ReplyText(),
			AuthorID: users[s.factory.Intn(len(users))],
		})
		if err != nil {
			return added, fmt.Errorf("seed reply: %w", err)
		}
		tree = append(tree, node{id: reply.ID, depth: parent.depth + 1})
		added++
	}
	return added, nil
}

// ClearAll removes every graph row, link tables first.
func ClearAll(ctx context.Context, db *gorm.DB) error {
	all := database.PersistentModels()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(all) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(all[i]).Error; err != nil {
				return fmt.Errorf("clear %T: %w", all[i], err)
			}
		}
		return nil
	})
}
