package server

import (
	"net/http"
	"testing"

	"agora/internal/cascade"
	"agora/internal/models"
	"agora/internal/pagination"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) community(t *testing.T, id, handle, creator string) pagination.CommunityDetail {
	t.Helper()
	var detail pagination.CommunityDetail
	require.Equal(t, fiber.StatusCreated, h.do(t, http.MethodPost, "/api/communities", fiber.Map{
		"id":         id,
		"name":       "The " + handle,
		"username":   handle,
		"bio":        "all about " + handle,
		"created_by": creator,
	}, &detail))
	return detail
}

func TestCommunityRoutes_Membership(t *testing.T) {
	h := newHarness(t)
	h.user(t, "user_alice", "alice")
	h.user(t, "user_bob", "bob")

	created := h.community(t, "org_go", "gophers", "user_alice")
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "user_alice", created.CreatedBy.ExternalID)
	assert.Len(t, created.Members, 1)

	assert.Equal(t, fiber.StatusNoContent, h.do(t, http.MethodPost, "/api/communities/org_go/members", fiber.Map{"user_id": "user_bob"}, nil))

	var dup models.ErrorResponse
	assert.Equal(t, fiber.StatusConflict, h.do(t, http.MethodPost, "/api/communities/org_go/members", fiber.Map{"user_id": "user_bob"}, &dup))
	assert.Equal(t, models.CodeAlreadyMember, dup.Code)

	var detail pagination.CommunityDetail
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/communities/org_go", nil, &detail))
	assert.Len(t, detail.Members, 2)

	assert.Equal(t, fiber.StatusNoContent, h.do(t, http.MethodDelete, "/api/communities/org_go/members/user_bob", nil, nil))

	var missing models.ErrorResponse
	assert.Equal(t, fiber.StatusNotFound, h.do(t, http.MethodDelete, "/api/communities/org_go/members/user_bob", nil, &missing))
	assert.Equal(t, models.CodeNotFound, missing.Code)

	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/communities/org_go", nil, &detail))
	assert.Len(t, detail.Members, 1)
}

func TestCommunityRoutes_PostsUpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	h.user(t, "user_alice", "alice")
	h.community(t, "org_go", "gophers", "user_alice")

	var th pagination.ThreadView
	require.Equal(t, fiber.StatusCreated, h.do(t, http.MethodPost, "/api/threads", fiber.Map{
		"text":         "first post",
		"author_id":    "user_alice",
		"community_id": "org_go",
	}, &th))
	require.NotNil(t, th.Community)
	assert.Equal(t, "org_go", th.Community.ExternalID)

	var posts service.CommunityPosts
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/communities/org_go/threads", nil, &posts))
	require.Len(t, posts.Threads, 1)
	assert.Equal(t, th.ID, posts.Threads[0].ID)

	var updated pagination.CommunityDetail
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodPatch, "/api/communities/org_go", fiber.Map{
		"name":     "Gopher Den",
		"username": "gopher-den",
	}, &updated))
	assert.Equal(t, "Gopher Den", updated.Name)
	assert.Equal(t, "gopher-den", updated.Username)

	var page pagination.Page[pagination.CommunitySummary]
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/communities?q=den", nil, &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodGet, "/api/communities?q=rust", nil, &page))
	assert.Empty(t, page.Items)

	var res cascade.Result
	require.Equal(t, fiber.StatusOK, h.do(t, http.MethodDelete, "/api/communities/org_go?path=/communities", nil, &res))
	assert.Equal(t, []uint{th.ID}, res.Deleted)

	assert.Equal(t, fiber.StatusNotFound, h.do(t, http.MethodGet, "/api/communities/org_go", nil, nil))
	assert.Equal(t, fiber.StatusNotFound, h.do(t, http.MethodGet, "/api/communities/org_go/threads", nil, nil))
}

func TestCommunityRoutes_CreateErrors(t *testing.T) {
	h := newHarness(t)
	h.user(t, "user_alice", "alice")
	h.community(t, "org_go", "gophers", "user_alice")

	tests := []struct {
		name   string
		body   fiber.Map
		status int
		code   string
	}{
		{"reserved handle", fiber.Map{"id": "org_1", "name": "Admins", "username": "admin", "created_by": "user_alice"}, fiber.StatusBadRequest, models.CodeValidation},
		{"duplicate handle", fiber.Map{"id": "org_2", "name": "Again", "username": "gophers", "created_by": "user_alice"}, fiber.StatusConflict, models.CodeConflict},
		{"unknown creator", fiber.Map{"id": "org_3", "name": "Ghosts", "username": "ghosts", "created_by": "nobody"}, fiber.StatusNotFound, models.CodeNotFound},
		{"missing id", fiber.Map{"name": "Nameless", "username": "nameless", "created_by": "user_alice"}, fiber.StatusBadRequest, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out models.ErrorResponse
			assert.Equal(t, tt.status, h.do(t, http.MethodPost, "/api/communities", tt.body, &out))
			assert.Equal(t, tt.code, out.Code)
		})
	}
}
