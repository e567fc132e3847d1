package validation

import (
	"strings"
	"unicode/utf8"

	"agora/internal/models"
)

var reservedCommunityHandles = map[string]struct{}{
	"admin":       {},
	"api":         {},
	"communities": {},
	"threads":     {},
	"users":       {},
	"activity":    {},
	"search":      {},
	"swagger":     {},
	"metrics":     {},
	"health":      {},
	"onboarding":  {},
	"profile":     {},
	"create":      {},
	"new":         {},
}

// CommunityInput holds the mutable community fields.
type CommunityInput struct {
	Name     string
	Username string
	Image    string
	Bio      string
}

// NormalizeHandle lowercases and trims a username or community handle.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateCommunityHandle validates handle format and reserved names. The
// handle must already be normalized.
func ValidateCommunityHandle(handle string) error {
	if err := ValidateUsername(handle); err != nil {
		return err
	}
	if _, exists := reservedCommunityHandles[handle]; exists {
		return models.NewValidationError("username is reserved")
	}
	return nil
}

// ValidateCommunity checks a community create or update payload.
func ValidateCommunity(in CommunityInput) error {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 120 {
		return models.NewValidationError("name must be between 3 and 120 characters")
	}
	if err := ValidateCommunityHandle(NormalizeHandle(in.Username)); err != nil {
		return err
	}
	if err := ValidateImageURL(in.Image); err != nil {
		return err
	}
	return ValidateBio(in.Bio)
}

// ValidateExternalID checks an identity-provider or client-assigned id.
func ValidateExternalID(field, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.NewValidationError(field + " is required")
	}
	if len(id) > 128 {
		return models.NewValidationError(field + " must be at most 128 characters")
	}
	return nil
}
