package repository

import (
	"context"
	"testing"

	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestThreadRepository_ChildIDsAndRefs(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	repo := NewThreadRepository(db)
	ctx := context.Background()

	alice := f.User("alice")
	bob := f.User("bob")
	c := f.Community("gophers", alice)
	root := f.Thread(alice, c, "root")
	a := f.Reply(bob, root, "a")
	b := f.Reply(alice, root, "b")
	f.Reply(bob, a, "a1")

	ids, err := repo.ChildIDs(ctx, []uint{root.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, ids)

	// a child known only by its parent pointer is still found
	orphanLink := &models.Thread{Text: "pointer only", AuthorID: bob.ID, ParentID: &root.ID}
	require.NoError(t, db.Create(orphanLink).Error)
	ids, err = repo.ChildIDs(ctx, []uint{root.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{a.ID, b.ID, orphanLink.ID}, ids)

	refs, err := repo.RefsOf(ctx, []uint{root.ID, a.ID, b.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, refs.AuthorIDs)
	assert.Equal(t, []uint{c.ID}, refs.CommunityIDs)
}

func TestThreadRepository_Listings(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	repo := NewThreadRepository(db)
	ctx := context.Background()

	alice := f.User("alice")
	bob := f.User("bob")
	c := f.Community("gophers", alice)
	t1 := f.Thread(alice, c, "one")
	t2 := f.Thread(alice, nil, "two")
	f.Thread(bob, c, "three")
	self := f.Reply(alice, t1, "self reply")
	other := f.Reply(bob, t1, "bob reply")
	f.Reply(alice, other, "nested reply by alice")

	page, err := repo.ListTopLevel(ctx, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.False(t, page.HasNext)

	mine, err := repo.ListByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, t2.ID, mine[0].ID)

	inCommunity, err := repo.ListByCommunity(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, inCommunity, 2)

	ids, err := repo.IDsInCommunity(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	activity, err := repo.RepliesTo(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, other.ID, activity[0].ID)
	assert.NotEqual(t, self.ID, activity[0].ID)
}

func TestThreadRepository_DeleteByIDs(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	repo := NewThreadRepository(db)
	ctx := context.Background()

	alice := f.User("alice")
	t1 := f.Thread(alice, nil, "one")
	t2 := f.Thread(alice, nil, "two")

	n, err := repo.DeleteByIDs(ctx, []uint{t1.ID, t2.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.GetByID(ctx, t1.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestThreadRepository_LockInsideTransaction(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()
	alice := f.User("alice")
	th := f.Thread(alice, nil, "locked")
	c := f.Community("gophers", alice)

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := NewThreadRepository(tx).Lock(ctx, th.ID, LockShare)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "locked", got.Text)

		missing, err := NewThreadRepository(tx).Lock(ctx, 9999, LockUpdate)
		require.NoError(t, err)
		assert.Nil(t, missing)

		comm, err := NewCommunityRepository(tx).Lock(ctx, c.ID, LockUpdate)
		require.NoError(t, err)
		require.NotNil(t, comm)
		assert.Equal(t, c.ExternalID, comm.ExternalID)
		return nil
	})
	require.NoError(t, err)
}

func TestCommunityRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.NewFixtures(t, db)
	repo := NewCommunityRepository(db)
	ctx := context.Background()

	alice := f.User("alice")
	c := &models.Community{ExternalID: "org_1", Username: " GoPhers ", Name: "Gophers", CreatedByID: alice.ID}
	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, "gophers", c.Username)

	dup := &models.Community{ExternalID: "org_2", Username: "gophers", Name: "Dup", CreatedByID: alice.ID}
	assert.True(t, models.IsConflict(repo.Create(ctx, dup)))

	require.NoError(t, repo.UpdateInfo(ctx, c.ID, "Gophers United", "GOPHERS-UNITED", "https://img.example.com/g.png"))
	got, err := repo.GetByExternalID(ctx, "org_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Gophers United", got.Name)
	assert.Equal(t, "gophers-united", got.Username)
	assert.Equal(t, alice.ID, got.CreatedByID)

	assert.True(t, models.IsNotFound(repo.UpdateInfo(ctx, 9999, "x", "xyz", "")))

	page, err := repo.Find(ctx, pagination.Params{Search: "united"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	n, err := repo.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	missing, err := repo.GetByExternalID(ctx, "org_1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
