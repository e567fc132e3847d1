package validation

import (
	"strings"
	"unicode/utf8"

	"agora/internal/models"
)

// MaxThreadLength bounds thread and reply bodies, counted in characters.
const MaxThreadLength = 5000

// ValidateThreadText requires 1 to MaxThreadLength characters of non-blank text.
func ValidateThreadText(text string) error {
	if strings.TrimSpace(text) == "" {
		return models.NewValidationError("text is required")
	}
	if utf8.RuneCountInString(text) > MaxThreadLength {
		return models.NewValidationError("text must be at most 5000 characters")
	}
	return nil
}
