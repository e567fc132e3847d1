// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"agora/internal/cache"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestConfig returns a config pointing at a fresh SQLite file under t.TempDir().
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agora_test.db")
	return &config.Config{
		Port:                     "0",
		DBDriver:                 "sqlite",
		DBSQLitePath:             fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=off", path),
		DBSchemaMode:             database.SchemaModeAuto,
		DBMaxOpenConns:           4,
		DBMaxIdleConns:           2,
		DBConnMaxLifetimeMinutes: 5,
		Env:                      "test",
		StoreTimeoutMS:           5000,
		StoreRetryAttempts:       3,
		DefaultPageSize:          20,
	}
}

// NewTestDB opens a migrated SQLite database that is closed when the test ends.
// A file database is used so every pooled connection sees the same tables.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(TestConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Fixtures inserts entities directly, bypassing services, for arranging state.
type Fixtures struct {
	t  *testing.T
	db *gorm.DB
	n  int
}

// NewFixtures returns a fixture builder over db.
func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) next() int {
	f.n++
	return f.n
}

// User inserts a user with a unique username derived from name.
func (f *Fixtures) User(name string) *models.User {
	f.t.Helper()
	n := f.next()
	u := &models.User{
		ExternalID: fmt.Sprintf("ext_user_%d_%s", n, name),
		Username:   fmt.Sprintf("%s%d", name, n),
		Name:       name,
		Onboarded:  true,
	}
	require.NoError(f.t, f.db.WithContext(context.Background()).Create(u).Error)
	return u
}

// Community inserts a community created by creator, with creator as a member
// on both sides of the membership pair.
func (f *Fixtures) Community(name string, creator *models.User) *models.Community {
	f.t.Helper()
	n := f.next()
	c := &models.Community{
		ExternalID:  fmt.Sprintf("ext_comm_%d_%s", n, name),
		Username:    fmt.Sprintf("%s%d", name, n),
		Name:        name,
		CreatedByID: creator.ID,
	}
	require.NoError(f.t, f.db.Create(c).Error)
	f.Member(c, creator)
	return c
}

// Member writes both membership links.
func (f *Fixtures) Member(c *models.Community, u *models.User) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&models.CommunityMember{CommunityID: c.ID, UserID: u.ID}).Error)
	require.NoError(f.t, f.db.Create(&models.UserCommunity{UserID: u.ID, CommunityID: c.ID}).Error)
}

// Thread inserts a top-level thread with its author and community links.
func (f *Fixtures) Thread(author *models.User, community *models.Community, text string) *models.Thread {
	f.t.Helper()
	th := &models.Thread{Text: text, AuthorID: author.ID}
	if community != nil {
		th.CommunityID = &community.ID
	}
	require.NoError(f.t, f.db.Create(th).Error)
	require.NoError(f.t, f.db.Create(&models.UserThread{UserID: author.ID, ThreadID: th.ID}).Error)
	if community != nil {
		require.NoError(f.t, f.db.Create(&models.CommunityThread{CommunityID: community.ID, ThreadID: th.ID}).Error)
	}
	return th
}

// Reply inserts a reply under parent with its author and child links.
func (f *Fixtures) Reply(author *models.User, parent *models.Thread, text string) *models.Thread {
	f.t.Helper()
	th := &models.Thread{Text: text, AuthorID: author.ID, ParentID: &parent.ID}
	require.NoError(f.t, f.db.Create(th).Error)
	require.NoError(f.t, f.db.Create(&models.UserThread{UserID: author.ID, ThreadID: th.ID}).Error)
	require.NoError(f.t, f.db.Create(&models.ThreadChild{ParentID: parent.ID, ChildID: th.ID}).Error)
	return th
}

// Count returns the number of rows in model's table matching the optional condition.
func (f *Fixtures) Count(model interface{}, query string, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	tx := f.db.Model(model)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	require.NoError(f.t, tx.Count(&n).Error)
	return n
}

// NewTestCache returns a cache store backed by an in-process Redis.
func NewTestCache(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.New(rdb), mr
}
