package server

import (
	"agora/internal/models"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createCommunityRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Image     string `json:"image"`
	Bio       string `json:"bio"`
	CreatedBy string `json:"created_by"`
	Path      string `json:"path"`
}

type updateCommunityRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image"`
	Path     string `json:"path"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
	Path   string `json:"path"`
}

// CreateCommunity handles POST /api/communities
// @Summary Create community
// @Description The creator becomes the first member
// @Tags communities
// @Accept json
// @Produce json
// @Param request body createCommunityRequest true "Community"
// @Success 201 {object} pagination.CommunityDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /communities [post]
func (s *Server) CreateCommunity(c *fiber.Ctx) error {
	var req createCommunityRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	detail, err := s.communities.CreateCommunity(c.UserContext(), service.CreateCommunityInput{
		ExternalID: req.ID,
		Name:       req.Name,
		Username:   req.Username,
		Image:      req.Image,
		Bio:        req.Bio,
		CreatedBy:  req.CreatedBy,
		Path:       req.Path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(detail)
}

// FetchCommunityDetails handles GET /api/communities/:id
// @Summary Community detail with creator and members
// @Tags communities
// @Produce json
// @Param id path string true "Community external ID"
// @Success 200 {object} pagination.CommunityDetail
// @Failure 404 {object} models.ErrorResponse
// @Router /communities/{id} [get]
func (s *Server) FetchCommunityDetails(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	detail, err := s.communities.FetchCommunityDetails(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(detail)
}

// FetchCommunityPosts handles GET /api/communities/:id/threads
// @Summary Threads posted in a community
// @Tags communities
// @Produce json
// @Param id path string true "Community external ID"
// @Success 200 {object} service.CommunityPosts
// @Failure 404 {object} models.ErrorResponse
// @Router /communities/{id}/threads [get]
func (s *Server) FetchCommunityPosts(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	posts, err := s.communities.FetchCommunityPosts(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// ListCommunities handles GET /api/communities
// @Summary Search communities
// @Tags communities
// @Produce json
// @Param q query string false "Matches name or username"
// @Param sort query string false "asc or desc" default(desc)
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} pagination.Page[pagination.CommunitySummary]
// @Router /communities [get]
func (s *Server) ListCommunities(c *fiber.Ctx) error {
	p := s.parsePage(c)
	page, err := s.communities.ListCommunities(c.UserContext(), service.ListCommunitiesInput{
		Search:     p.Search,
		PageNumber: p.Number,
		PageSize:   p.Size,
		Sort:       p.Sort,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(page)
}

// AddMemberToCommunity handles POST /api/communities/:id/members
// @Summary Add a member
// @Tags communities
// @Accept json
// @Param id path string true "Community external ID"
// @Param request body memberRequest true "Member"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /communities/{id}/members [post]
func (s *Server) AddMemberToCommunity(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	var req memberRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if err := s.communities.AddMemberToCommunity(c.UserContext(), id, req.UserID, req.Path); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveUserFromCommunity handles DELETE /api/communities/:id/members/:userId
// @Summary Remove a member
// @Tags communities
// @Param id path string true "Community external ID"
// @Param userId path string true "User external ID"
// @Param path query string false "Page to revalidate"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /communities/{id}/members/{userId} [delete]
func (s *Server) RemoveUserFromCommunity(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	userID, err := parseExternalID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.communities.RemoveUserFromCommunity(c.UserContext(), id, userID, c.Query("path")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateCommunityInfo handles PATCH /api/communities/:id
// @Summary Rename or re-image a community
// @Tags communities
// @Accept json
// @Produce json
// @Param id path string true "Community external ID"
// @Param request body updateCommunityRequest true "Changes"
// @Success 200 {object} pagination.CommunityDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /communities/{id} [patch]
func (s *Server) UpdateCommunityInfo(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	var req updateCommunityRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	detail, err := s.communities.UpdateCommunityInfo(c.UserContext(), service.UpdateCommunityInput{
		ExternalID: id,
		Name:       req.Name,
		Username:   req.Username,
		Image:      req.Image,
		Path:       req.Path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(detail)
}

// DeleteCommunity handles DELETE /api/communities/:id
// @Summary Delete a community with its threads and memberships
// @Tags communities
// @Produce json
// @Param id path string true "Community external ID"
// @Param path query string false "Page to revalidate"
// @Success 200 {object} cascade.Result
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /communities/{id} [delete]
func (s *Server) DeleteCommunity(c *fiber.Ctx) error {
	id, err := parseExternalID(c, "id")
	if err != nil {
		return nil
	}
	res, err := s.communities.DeleteCommunity(c.UserContext(), id, c.Query("path"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(res)
}
