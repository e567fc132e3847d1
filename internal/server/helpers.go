package server

import (
	"errors"
	"strings"

	"agora/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Page holds parsed page/page_size query parameters.
type Page struct {
	Number int
	Size   int
	Search string
	Sort   string
}

// parsePage reads page, page_size, q and sort. Out-of-range values are
// clamped later by the pagination package.
func (s *Server) parsePage(c *fiber.Ctx) Page {
	return Page{
		Number: c.QueryInt("page", 1),
		Size:   c.QueryInt("page_size", s.config.DefaultPageSize),
		Search: c.Query("q"),
		Sort:   c.Query("sort"),
	}
}

// parseThreadID extracts a thread id route parameter as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseThreadID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid thread ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseExternalID extracts an identity-provider id from the route.
func parseExternalID(c *fiber.Ctx, param string) (string, error) {
	id := strings.TrimSpace(c.Params(param))
	if id == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+param))
		return "", errResponseWritten
	}
	return id, nil
}

// parseBody decodes the JSON body into dest or writes a 400.
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}
