package server

import (
	"fmt"
	"net/http"
	"testing"

	"agora/internal/cache"
	"agora/internal/cascade"
	"agora/internal/models"
	"agora/internal/pagination"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadRoutes_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.user(t, "user_alice", "alice")
	h.user(t, "user_bob", "bob")

	var root pagination.ThreadView
	require.Equal(t, fiber.StatusCreated, h.do(t, http.MethodPost, "/api/threads", fiber.Map{
		"text":      "hello world",
		"author_id": "user_alice",
		"path":      "/",
	}, &root))
	assert.Equal(t, "user_alice", root.Author.ExternalID)
	assert.Nil(t, root.Community)

	var reply pagination.ReplyView
	require.Equal(t, fiber.StatusCreated, h.do(t, http.MethodPost, fmt.Sprintf("/api/threads/%d/comments", root.ID), fiber.Map{
		"text":      "hi back",
		"author_id": "user_bob",
	}, &reply))
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	var feed pagination.Page[pagination.ThreadView]
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/threads?page=1&page_size=10", nil, &feed))
	require.Len(t, feed.Items, 1)
	assert.False(t, feed.HasNext)
	require.Len(t, feed.Items[0].Children, 1)
	assert.Equal(t, "user_bob", feed.Items[0].Children[0].Author.ExternalID)

	var detail pagination.ThreadDetail
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, fmt.Sprintf("/api/threads/%d", root.ID), nil, &detail))
	require.Len(t, detail.Children, 1)
	assert.True(t, h.mr.Exists(cache.ThreadKey(root.ID)))

	var res cascade.Result
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodDelete, fmt.Sprintf("/api/threads/%d?path=/", root.ID), nil, &res))
	assert.ElementsMatch(t, []uint{root.ID, reply.ID}, res.Deleted)
	assert.False(t, h.mr.Exists(cache.ThreadKey(root.ID)))

	var gone models.ErrorResponse
	assert.Equal(t, fiber.StatusNotFound, h.do(t, http.MethodGet, fmt.Sprintf("/api/threads/%d", root.ID), nil, &gone))
	assert.Equal(t, models.CodeNotFound, gone.Code)
}

func TestThreadRoutes_Errors(t *testing.T) {
	h := newHarness(t)
	h.user(t, "user_alice", "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"blank text", http.MethodPost, "/api/threads", fiber.Map{"text": "  ", "author_id": "user_alice"}, fiber.StatusBadRequest, models.CodeValidation},
		{"unknown author", http.MethodPost, "/api/threads", fiber.Map{"text": "x", "author_id": "nobody"}, fiber.StatusNotFound, models.CodeNotFound},
		{"unknown community", http.MethodPost, "/api/threads", fiber.Map{"text": "x", "author_id": "user_alice", "community_id": "org_x"}, fiber.StatusNotFound, models.CodeNotFound},
		{"bad id", http.MethodGet, "/api/threads/abc", nil, fiber.StatusBadRequest, models.CodeValidation},
		{"zero id", http.MethodDelete, "/api/threads/0", nil, fiber.StatusBadRequest, models.CodeValidation},
		{"reply to missing", http.MethodPost, "/api/threads/999/comments", fiber.Map{"text": "x", "author_id": "user_alice"}, fiber.StatusNotFound, models.CodeNotFound},
		{"delete missing", http.MethodDelete, "/api/threads/999", nil, fiber.StatusNotFound, models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out models.ErrorResponse
			assert.Equal(t, tt.status, h.do(t, tt.method, tt.path, tt.body, &out))
			assert.Equal(t, tt.code, out.Code)
		})
	}
}

func TestThreadRoutes_MalformedBody(t *testing.T) {
	h := newHarness(t)
	var out models.ErrorResponse
	assert.Equal(t, fiber.StatusBadRequest, h.do(t, http.MethodPost, "/api/threads", "not an object", &out))
	assert.Equal(t, models.CodeValidation, out.Code)
}

func TestListPosts_EmptyFeed(t *testing.T) {
	h := newHarness(t)
	var feed pagination.Page[pagination.ThreadView]
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/threads", nil, &feed))
	assert.NotNil(t, feed.Items)
	assert.Empty(t, feed.Items)
	assert.False(t, feed.HasNext)
}
