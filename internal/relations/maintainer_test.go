package relations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agora/internal/database"
	"agora/internal/models"
	"agora/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type membershipState struct {
	members  int64
	backrefs int64
}

func state(f *testutil.Fixtures, c *models.Community, u *models.User) membershipState {
	return membershipState{
		members:  f.Count(&models.CommunityMember{}, "community_id = ? AND user_id = ?", c.ID, u.ID),
		backrefs: f.Count(&models.UserCommunity{}, "user_id = ? AND community_id = ?", u.ID, c.ID),
	}
}

func TestAddRemoveMember_RoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	owner := f.User("owner")
	u := f.User("joiner")
	c := f.Community("gophers", owner)

	before := state(f, c, u)
	require.NoError(t, m.AddMember(ctx, c.ID, u.ID))
	assert.Equal(t, membershipState{1, 1}, state(f, c, u))

	require.NoError(t, m.RemoveMember(ctx, c.ID, u.ID))
	assert.Equal(t, before, state(f, c, u))
	assert.Equal(t, membershipState{1, 1}, state(f, c, owner))
}

func TestAddMember_TwiceFailsWithoutChange(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	owner := f.User("owner")
	u := f.User("joiner")
	c := f.Community("gophers", owner)

	require.NoError(t, m.AddMember(ctx, c.ID, u.ID))
	err := m.AddMember(ctx, c.ID, u.ID)
	assert.Equal(t, models.CodeAlreadyMember, models.CodeOf(err))
	assert.True(t, models.IsConflict(err))
	assert.Equal(t, membershipState{1, 1}, state(f, c, u))
}

func TestAddMember_CompletesOneSidedBackref(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)

	owner := f.User("owner")
	u := f.User("joiner")
	c := f.Community("gophers", owner)
	require.NoError(t, db.Create(&models.UserCommunity{UserID: u.ID, CommunityID: c.ID}).Error)

	require.NoError(t, m.AddMember(context.Background(), c.ID, u.ID))
	assert.Equal(t, membershipState{1, 1}, state(f, c, u))
}

func TestAddMember_MissingCommunity(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	u := f.User("joiner")

	err := NewMaintainer(db).AddMember(context.Background(), 9999, u.ID)
	assert.True(t, models.IsNotFound(err), "got %v", err)
	assert.Equal(t, int64(0), f.Count(&models.UserCommunity{}, "user_id = ?", u.ID))
}

func TestAddMember_LinkAddedAfterCheckIsAlreadyMember(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	owner := f.User("owner")
	u := f.User("joiner")
	c := f.Community("gophers", owner)

	// Another writer lands the link between the membership check and the insert.
	var once sync.Once
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:late_member", func(tx *gorm.DB) {
		if tx.Statement.Table != "community_members" {
			return
		}
		once.Do(func() {
			require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
				Create(&models.CommunityMember{CommunityID: c.ID, UserID: u.ID}).Error)
		})
	}))

	err := NewMaintainer(db).AddMember(context.Background(), c.ID, u.ID)
	assert.Equal(t, models.CodeAlreadyMember, models.CodeOf(err), "got %v", err)
	assert.Equal(t, int64(0), f.Count(&models.UserCommunity{}, "user_id = ? AND community_id = ?", u.ID, c.ID))
}

func TestAppendChild_MissingParent(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()
	a := f.User("alice")

	err := m.Within(ctx, func(tx *gorm.DB) error {
		return m.AppendChild(ctx, tx, 9999, &models.Thread{Text: "orphan", AuthorID: a.ID})
	})
	assert.True(t, models.IsNotFound(err), "got %v", err)
	assert.Equal(t, int64(0), f.Count(&models.Thread{}, ""))
}

func TestAttachThread_MissingCommunity(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()
	a := f.User("alice")
	gone := uint(9999)

	err := m.Within(ctx, func(tx *gorm.DB) error {
		return m.AttachThread(ctx, tx, &models.Thread{Text: "lost", AuthorID: a.ID, CommunityID: &gone})
	})
	assert.True(t, models.IsNotFound(err), "got %v", err)
	assert.Equal(t, int64(0), f.Count(&models.Thread{}, ""))
}

func TestRemoveMember(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	owner := f.User("owner")
	u := f.User("stranger")
	c := f.Community("gophers", owner)

	err := m.RemoveMember(ctx, c.ID, u.ID)
	assert.True(t, models.IsNotFound(err), "got %v", err)

	require.NoError(t, db.Create(&models.CommunityMember{CommunityID: c.ID, UserID: u.ID}).Error)
	require.NoError(t, m.RemoveMember(ctx, c.ID, u.ID))
	assert.Equal(t, membershipState{0, 0}, state(f, c, u))
}

func TestAttachThread_ThreeWayWrite(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	author := f.User("author")
	c := f.Community("gophers", author)

	th := &models.Thread{Text: "hello", AuthorID: author.ID, CommunityID: &c.ID}
	require.NoError(t, m.Within(ctx, func(tx *gorm.DB) error {
		return m.AttachThread(ctx, tx, th)
	}))
	assert.NotZero(t, th.ID)
	assert.Equal(t, int64(1), f.Count(&models.UserThread{}, "user_id = ? AND thread_id = ?", author.ID, th.ID))
	assert.Equal(t, int64(1), f.Count(&models.CommunityThread{}, "community_id = ? AND thread_id = ?", c.ID, th.ID))

	reply := &models.Thread{Text: "not top level", AuthorID: author.ID, ParentID: &th.ID}
	err := m.Within(ctx, func(tx *gorm.DB) error { return m.AttachThread(ctx, tx, reply) })
	assert.True(t, models.IsValidation(err))
}

func TestAttachThread_RollsBackTogether(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	author := f.User("author")
	boom := errors.New("later step failed")
	err := m.Within(ctx, func(tx *gorm.DB) error {
		if err := m.AttachThread(ctx, tx, &models.Thread{Text: "x", AuthorID: author.ID}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), f.Count(&models.Thread{}, ""))
	assert.Equal(t, int64(0), f.Count(&models.UserThread{}, ""))
}

func TestAppendChild_ConcurrentRepliesBothLand(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	a := f.User("alice")
	b := f.User("bob")
	parent := f.Thread(a, nil, "parent")

	policy := database.RetryPolicy{Attempts: 10, InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond}
	errs := make(chan error, 2)
	for _, u := range []*models.User{a, b} {
		u := u
		go func() {
			errs <- database.RetryExec(ctx, policy, "reply", func(ctx context.Context) error {
				return m.Within(ctx, func(tx *gorm.DB) error {
					return m.AppendChild(ctx, tx, parent.ID, &models.Thread{Text: "reply", AuthorID: u.ID})
				})
			})
		}()
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, int64(2), f.Count(&models.ThreadChild{}, "parent_id = ?", parent.ID))
	assert.Equal(t, int64(2), f.Count(&models.Thread{}, "parent_id = ?", parent.ID))
}

func TestReconcile(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	m := NewMaintainer(db)
	ctx := context.Background()

	owner := f.User("owner")
	u1 := f.User("one")
	u2 := f.User("two")
	c := f.Community("gophers", owner)

	require.NoError(t, db.Create(&models.CommunityMember{CommunityID: c.ID, UserID: u1.ID}).Error)
	require.NoError(t, db.Create(&models.UserCommunity{UserID: u2.ID, CommunityID: c.ID}).Error)

	report, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{MembersRestored: 1, BackrefsRestored: 1}, report)
	assert.Equal(t, membershipState{1, 1}, state(f, c, u1))
	assert.Equal(t, membershipState{1, 1}, state(f, c, u2))

	again, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, again)
}
