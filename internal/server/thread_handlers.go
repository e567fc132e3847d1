package server

import (
	"agora/internal/models"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createThreadRequest struct {
	Text        string `json:"text"`
	AuthorID    string `json:"author_id"`
	CommunityID string `json:"community_id"`
	Path        string `json:"path"`
}

type addCommentRequest struct {
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
	Path     string `json:"path"`
}

// CreateThread handles POST /api/threads
// @Summary Create thread
// @Description Post a top-level thread, optionally inside a community
// @Tags threads
// @Accept json
// @Produce json
// @Param request body createThreadRequest true "Thread"
// @Success 201 {object} pagination.ThreadView
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /threads [post]
func (s *Server) CreateThread(c *fiber.Ctx) error {
	var req createThreadRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	view, err := s.threads.CreateThread(c.UserContext(), service.CreateThreadInput{
		Text:        req.Text,
		AuthorID:    req.AuthorID,
		CommunityID: req.CommunityID,
		Path:        req.Path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// AddComment handles POST /api/threads/:id/comments
// @Summary Reply to a thread
// @Tags threads
// @Accept json
// @Produce json
// @Param id path int true "Parent thread ID"
// @Param request body addCommentRequest true "Reply"
// @Success 201 {object} pagination.ReplyView
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /threads/{id}/comments [post]
func (s *Server) AddComment(c *fiber.Ctx) error {
	id, err := parseThreadID(c, "id")
	if err != nil {
		return nil
	}
	var req addCommentRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	reply, err := s.threads.AddComment(c.UserContext(), service.AddCommentInput{
		ThreadID: id,
		Text:     req.Text,
		AuthorID: req.AuthorID,
		Path:     req.Path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

// DeleteThread handles DELETE /api/threads/:id
// @Summary Delete a thread and every reply below it
// @Description A 500 with code PARTIAL_CASCADE means rows were removed but cache cleanup is pending
// @Tags threads
// @Produce json
// @Param id path int true "Thread ID"
// @Param path query string false "Page to revalidate"
// @Success 200 {object} cascade.Result
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /threads/{id} [delete]
func (s *Server) DeleteThread(c *fiber.Ctx) error {
	id, err := parseThreadID(c, "id")
	if err != nil {
		return nil
	}
	res, err := s.threads.DeleteThread(c.UserContext(), id, c.Query("path"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(res)
}

// FetchThread handles GET /api/threads/:id
// @Summary Thread detail
// @Description Thread with its replies and their replies
// @Tags threads
// @Produce json
// @Param id path int true "Thread ID"
// @Success 200 {object} pagination.ThreadDetail
// @Failure 404 {object} models.ErrorResponse
// @Router /threads/{id} [get]
func (s *Server) FetchThread(c *fiber.Ctx) error {
	id, err := parseThreadID(c, "id")
	if err != nil {
		return nil
	}
	detail, err := s.threads.FetchThreadByID(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(detail)
}

// ListPosts handles GET /api/threads
// @Summary Feed of top-level threads, newest first
// @Tags threads
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} pagination.Page[pagination.ThreadView]
// @Router /threads [get]
func (s *Server) ListPosts(c *fiber.Ctx) error {
	p := s.parsePage(c)
	page, err := s.threads.ListPosts(c.UserContext(), p.Number, p.Size)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(page)
}
