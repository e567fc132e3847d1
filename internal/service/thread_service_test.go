package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"agora/internal/cache"
	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	c := h.fixtures.Community("gophers", alice)
	require.NoError(t, h.mr.Set(cache.UserThreadsKey(alice.ExternalID), "{}"))

	view, err := h.threads.CreateThread(ctx, CreateThreadInput{
		Text: "hello", AuthorID: alice.ExternalID, CommunityID: c.ExternalID, Path: "/",
	})
	require.NoError(t, err)
	require.NotNil(t, view.Author)
	assert.Equal(t, alice.ExternalID, view.Author.ExternalID)
	require.NotNil(t, view.Community)
	assert.Equal(t, c.ExternalID, view.Community.ExternalID)
	assert.Empty(t, view.Children)

	assert.Equal(t, int64(1), h.fixtures.Count(&models.UserThread{}, "user_id = ? AND thread_id = ?", alice.ID, view.ID))
	assert.Equal(t, int64(1), h.fixtures.Count(&models.CommunityThread{}, "community_id = ? AND thread_id = ?", c.ID, view.ID))
	assert.False(t, h.mr.Exists(cache.UserThreadsKey(alice.ExternalID)))
	assert.Equal(t, []string{"/"}, h.hook.Paths())
	assert.Equal(t, []string{fmt.Sprintf("thread:%d:created", view.ID)}, h.hook.Changes())
}

func TestCreateThread_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")

	tests := []struct {
		name  string
		in    CreateThreadInput
		check func(error) bool
	}{
		{"blank text", CreateThreadInput{Text: "   ", AuthorID: alice.ExternalID}, models.IsValidation},
		{"too long", CreateThreadInput{Text: strings.Repeat("a", 5001), AuthorID: alice.ExternalID}, models.IsValidation},
		{"missing author id", CreateThreadInput{Text: "hi"}, models.IsValidation},
		{"unknown author", CreateThreadInput{Text: "hi", AuthorID: "nobody"}, models.IsNotFound},
		{"unknown community", CreateThreadInput{Text: "hi", AuthorID: alice.ExternalID, CommunityID: "nowhere"}, models.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.threads.CreateThread(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
	assert.Equal(t, int64(0), h.fixtures.Count(&models.Thread{}, ""))
	assert.Equal(t, int64(0), h.fixtures.Count(&models.UserThread{}, ""))
	assert.Empty(t, h.hook.Paths())
}

func TestCreateThread_FiveThousandCharactersAccepted(t *testing.T) {
	h := newHarness(t)
	alice := h.fixtures.User("alice")
	_, err := h.threads.CreateThread(context.Background(), CreateThreadInput{Text: strings.Repeat("é", 5000), AuthorID: alice.ExternalID})
	require.NoError(t, err)
}

func TestAddComment_VisibleOnDetailAfterCachedRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	bob := h.fixtures.User("bob")
	c := h.fixtures.Community("gophers", alice)
	root := h.fixtures.Thread(alice, c, "root")

	before, err := h.threads.FetchThreadByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, before.Children)
	assert.True(t, h.mr.Exists(cache.ThreadKey(root.ID)))

	reply, err := h.threads.AddComment(ctx, AddCommentInput{ThreadID: root.ID, Text: "nice", AuthorID: bob.ExternalID, Path: "/thread/1"})
	require.NoError(t, err)
	require.NotNil(t, reply.Author)
	assert.Equal(t, bob.Name, reply.Author.Name)
	assert.Equal(t, root.ID, *reply.ParentID)

	after, err := h.threads.FetchThreadByID(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, after.Children, 1)
	assert.Equal(t, reply.ID, after.Children[0].ID)

	var stored models.Thread
	require.NoError(t, h.db.First(&stored, reply.ID).Error)
	assert.Nil(t, stored.CommunityID)
	assert.Equal(t, int64(1), h.fixtures.Count(&models.ThreadChild{}, "parent_id = ? AND child_id = ?", root.ID, reply.ID))
}

func TestAddComment_UnknownParent(t *testing.T) {
	h := newHarness(t)
	bob := h.fixtures.User("bob")
	_, err := h.threads.AddComment(context.Background(), AddCommentInput{ThreadID: 42, Text: "hi", AuthorID: bob.ExternalID})
	assert.True(t, models.IsNotFound(err))
	assert.Equal(t, int64(0), h.fixtures.Count(&models.Thread{}, ""))
}

func TestAddComment_ParentDeletedConcurrently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	bob := h.fixtures.User("bob")
	root := h.fixtures.Thread(alice, nil, "root")

	beforeInsert(t, h.db, "threads", func() {
		_, err := h.threads.DeleteThread(context.Background(), root.ID, "/")
		require.NoError(t, err)
	})

	_, err := h.threads.AddComment(ctx, AddCommentInput{ThreadID: root.ID, Text: "too late", AuthorID: bob.ExternalID})
	assert.True(t, models.IsNotFound(err), "got %v", err)
	assert.Equal(t, int64(0), h.orphans())
	assert.Equal(t, int64(0), h.fixtures.Count(&models.Thread{}, ""))
	assert.Equal(t, int64(0), h.fixtures.Count(&models.UserThread{}, ""))
}

func TestCreateThread_CommunityDeletedConcurrently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	c := h.fixtures.Community("gophers", alice)

	beforeInsert(t, h.db, "threads", func() {
		_, err := h.communities.DeleteCommunity(context.Background(), c.ExternalID, "/")
		require.NoError(t, err)
	})

	_, err := h.threads.CreateThread(ctx, CreateThreadInput{Text: "hello", AuthorID: alice.ExternalID, CommunityID: c.ExternalID})
	assert.True(t, models.IsNotFound(err), "got %v", err)
	assert.Equal(t, int64(0), h.orphans())
	assert.Equal(t, int64(0), h.fixtures.Count(&models.CommunityThread{}, ""))
	assert.Equal(t, int64(0), h.fixtures.Count(&models.UserThread{}, ""))
}

func TestFetchThreadByID_ServedFromCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	root := h.fixtures.Thread(alice, nil, "original")

	first, err := h.threads.FetchThreadByID(ctx, root.ID)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(root).Update("text", "edited behind the cache").Error)

	second, err := h.threads.FetchThreadByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)

	_, err = h.threads.FetchThreadByID(ctx, 999)
	assert.True(t, models.IsNotFound(err))
}

func TestDeleteThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	bob := h.fixtures.User("bob")
	root := h.fixtures.Thread(alice, nil, "root")
	h.fixtures.Reply(alice, h.fixtures.Reply(bob, root, "r1"), "r2")

	_, err := h.threads.FetchThreadByID(ctx, root.ID)
	require.NoError(t, err)

	res, err := h.threads.DeleteThread(ctx, root.ID, "/feed")
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 3)
	assert.Equal(t, []string{"/feed"}, h.hook.Paths())

	_, err = h.threads.FetchThreadByID(ctx, root.ID)
	assert.True(t, models.IsNotFound(err))
	assert.Equal(t, int64(0), h.fixtures.Count(&models.UserThread{}, ""))

	_, err = h.threads.DeleteThread(ctx, root.ID, "/feed")
	assert.True(t, models.IsNotFound(err))
}

func TestListPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.fixtures.User("alice")
	bob := h.fixtures.User("bob")
	var last *models.Thread
	for i := 0; i < 21; i++ {
		last = h.fixtures.Thread(alice, nil, fmt.Sprintf("post %d", i))
	}
	h.fixtures.Reply(bob, last, "a reply is not a post")

	page, err := h.threads.ListPosts(ctx, 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Items, 20)
	assert.True(t, page.HasNext)
	assert.Equal(t, last.ID, page.Items[0].ID)
	require.Len(t, page.Items[0].Children, 1)
	assert.Equal(t, bob.Name, page.Items[0].Children[0].Author.Name)

	page, err = h.threads.ListPosts(ctx, 2, 20)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasNext)

	page, err = h.threads.ListPosts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 20)
}
