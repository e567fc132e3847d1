package server

import (
	"agora/internal/models"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

type updateUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Bio      string `json:"bio"`
	Image    string `json:"image"`
	Path     string `json:"path"`
}

// FetchUser handles GET /api/users/:id
// @Summary User profile with communities
// @Tags users
// @Produce json
// @Param id path string true "User external ID"
// @Success 200 {object} pagination.UserProfile
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) FetchUser(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	profile, err := s.users.FetchUser(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}

// UpdateUser handles PUT /api/users/:id
// @Summary Create or update a profile
// @Description Marks the user onboarded
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User external ID"
// @Param request body updateUserRequest true "Profile"
// @Success 200 {object} pagination.UserSummary
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	var req updateUserRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.users.UpdateUser(c.UserContext(), service.UpdateUserInput{
		ExternalID: id,
		Username:   req.Username,
		Name:       req.Name,
		Bio:        req.Bio,
		Image:      req.Image,
		Path:       req.Path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(user)
}

// FetchUserPosts handles GET /api/users/:id/threads
// @Summary Top-level threads by a user
// @Tags users
// @Produce json
// @Param id path string true "User external ID"
// @Success 200 {object} service.UserPosts
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id}/threads [get]
func (s *Server) FetchUserPosts(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	posts, err := s.users.FetchUserPosts(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// ListUsers handles GET /api/users
// @Summary Search users
// @Tags users
// @Produce json
// @Param exclude query string false "User external ID to leave out"
// @Param q query string false "Matches username or name"
// @Param sort query string false "asc or desc" default(desc)
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} pagination.Page[pagination.UserSummary]
// @Router /users [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	p := s.parsePage(c)
	exclude := c.Query("exclude")
	if exclude == "" {
		if actor, ok := c.Locals("actorID").(string); ok {
			exclude = actor
		}
	}
	page, err := s.users.ListUsers(c.UserContext(), service.ListUsersInput{
		ExcludeUserID: exclude,
		Search:        p.Search,
		PageNumber:    p.Number,
		PageSize:      p.Size,
		Sort:          p.Sort,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(page)
}

// GetActivity handles GET /api/users/:id/activity
// @Summary Replies to a user's threads by other users
// @Tags users
// @Produce json
// @Param id path string true "User external ID"
// @Success 200 {array} pagination.ActivityItem
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id}/activity [get]
func (s *Server) GetActivity(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	items, err := s.users.GetActivity(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(items)
}
