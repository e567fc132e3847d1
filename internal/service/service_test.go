package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingHook captures invalidation hook calls.
type recordingHook struct {
	mu      sync.Mutex
	paths   []string
	changes []string
}

func (h *recordingHook) Revalidate(_ context.Context, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paths = append(h.paths, path)
}

func (h *recordingHook) PublishEntity(_ context.Context, kind, id, action string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, kind+":"+id+":"+action)
	return nil
}

func (h *recordingHook) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func (h *recordingHook) Changes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.changes...)
}

type harness struct {
	db          *gorm.DB
	mr          *miniredis.Miniredis
	hook        *recordingHook
	fixtures    *testutil.Fixtures
	threads     *ThreadService
	communities *CommunityService
	users       *UserService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testutil.TestConfig(t)
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store, mr := testutil.NewTestCache(t)
	hook := &recordingHook{}

	d := NewDeps(db, cfg, store, hook)
	d.Retry = database.RetryPolicy{Attempts: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return &harness{
		db:          db,
		mr:          mr,
		hook:        hook,
		fixtures:    testutil.NewFixtures(t, db),
		threads:     NewThreadService(d),
		communities: NewCommunityService(d),
		users:       NewUserService(d),
	}
}

// beforeInsert runs fn once, just before the first insert into table. fn
// runs on its own pooled connection, so its writes commit independently of
// the insert's transaction.
func beforeInsert(t *testing.T, db *gorm.DB, table string, fn func()) {
	t.Helper()
	var once sync.Once
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:before_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			once.Do(fn)
		}
	}))
}

// orphans counts threads whose parent or community row is gone.
func (h *harness) orphans() int64 {
	return h.fixtures.Count(&models.Thread{},
		"(parent_id IS NOT NULL AND parent_id NOT IN (SELECT id FROM threads)) OR (community_id IS NOT NULL AND community_id NOT IN (SELECT id FROM communities))")
}
