// Package service is the operation boundary: every public operation
// validates its input, resolves external ids, runs its store work under a
// deadline with transient-failure retries, and fires the invalidation hook
// after a successful mutation.
package service

import (
	"context"
	"log/slog"
	"time"

	"agora/internal/cache"
	"agora/internal/cascade"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/notifications"
	"agora/internal/pagination"
	"agora/internal/relations"
	"agora/internal/repository"

	"gorm.io/gorm"
)

// Hook is told about committed mutations. Implementations must not block
// on failure; *notifications.Notifier is the production hook.
type Hook interface {
	Revalidate(ctx context.Context, path string)
	PublishEntity(ctx context.Context, kind, entityID, action string) error
}

var _ Hook = (*notifications.Notifier)(nil)

// Deps are the collaborators shared by every service.
type Deps struct {
	DB          *gorm.DB
	Users       repository.UserRepository
	Communities repository.CommunityRepository
	Threads     repository.ThreadRepository
	Relations   *relations.Maintainer
	Cascade     *cascade.Engine
	Projector   *pagination.Projector
	Cache       *cache.Store
	Hook        Hook
	Timeout     time.Duration
	Retry       database.RetryPolicy
}

// NewDeps wires the default collaborators over db. store and hook may be nil.
func NewDeps(db *gorm.DB, cfg *config.Config, store *cache.Store, hook Hook) Deps {
	m := relations.NewMaintainer(db)
	retry := database.DefaultRetryPolicy()
	if cfg.StoreRetryAttempts > 0 {
		retry.Attempts = uint(cfg.StoreRetryAttempts)
	}
	if hook == nil {
		hook = (*notifications.Notifier)(nil)
	}
	return Deps{
		DB:          db,
		Users:       repository.NewUserRepository(db),
		Communities: repository.NewCommunityRepository(db),
		Threads:     repository.NewThreadRepository(db),
		Relations:   m,
		Cascade:     cascade.NewEngine(db, m, store),
		Projector:   pagination.NewProjector(db),
		Cache:       store,
		Hook:        hook,
		Timeout:     cfg.StoreTimeout(),
		Retry:       retry,
	}
}

// Change describes a committed mutation for the invalidation hook.
type Change struct {
	Kind     string
	EntityID string
	Action   string
	Path     string
	Keys     []string
}

// withTimeout bounds an operation's store work.
func (d *Deps) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

// after runs post-commit side effects. None of them can fail the operation.
func (d *Deps) after(ctx context.Context, ch Change) {
	ctx = context.WithoutCancel(ctx)
	if err := d.Cache.Invalidate(ctx, ch.Keys...); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("kind", ch.Kind),
			slog.String("id", ch.EntityID),
			slog.Int("keys", len(ch.Keys)),
			slog.String("error", err.Error()),
		)
	}
	if err := d.Hook.PublishEntity(ctx, ch.Kind, ch.EntityID, ch.Action); err != nil {
		middleware.Logger.WarnContext(ctx, "entity change publish failed",
			slog.String("kind", ch.Kind),
			slog.String("id", ch.EntityID),
			slog.String("error", err.Error()),
		)
	}
	d.Hook.Revalidate(ctx, ch.Path)
}

// fail logs an operation failure with the entity it concerned and returns
// err unchanged. Caller mistakes log at info, store faults at error.
func fail(ctx context.Context, op, kind, id string, err error) error {
	level := slog.LevelError
	switch models.CodeOf(err) {
	case models.CodeValidation, models.CodeNotFound, models.CodeConflict, models.CodeAlreadyMember:
		level = slog.LevelInfo
	case models.CodeTransient, models.CodePartialCascade:
		level = slog.LevelWarn
	}
	middleware.Logger.Log(ctx, level, "operation failed",
		slog.String("operation", op),
		slog.String("kind", kind),
		slog.String("id", id),
		slog.String("code", models.CodeOf(err)),
		slog.String("error", err.Error()),
	)
	return err
}

// pageParams builds normalized paging input.
func pageParams(pageNumber, pageSize int, search, sort string) pagination.Params {
	return pagination.Params{
		PageNumber: pageNumber,
		PageSize:   pageSize,
		Search:     search,
		Sort:       pagination.ParseSort(sort),
	}.Normalize()
}

func (d *Deps) userByExternalID(ctx context.Context, id string) (*models.User, error) {
	u, err := d.Users.GetByExternalID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, models.NewNotFoundError("User", id)
	}
	return u, nil
}

func (d *Deps) communityByExternalID(ctx context.Context, id string) (*models.Community, error) {
	c, err := d.Communities.GetByExternalID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, models.NewNotFoundError("Community", id)
	}
	return c, nil
}

func (d *Deps) threadByID(ctx context.Context, id uint) (*models.Thread, error) {
	t, err := d.Threads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, models.NewNotFoundError("Thread", id)
	}
	return t, nil
}
