// Package validation holds field rules applied before anything reaches the store.
package validation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"agora/internal/models"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,62}[a-z0-9]$`)

// UserInput holds the profile fields accepted by updateUser.
type UserInput struct {
	ExternalID string
	Username   string
	Name       string
	Bio        string
	Image      string
}

// ValidateUsername checks a normalized username: 3 to 64 characters of
// lowercase letters, digits, '_', '.' or '-', starting and ending alphanumeric.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return models.NewValidationError("username must be 3-64 characters of lowercase letters, digits, '_', '.' or '-' and start and end with a letter or digit")
	}
	return nil
}

// ValidateBio caps free text at 1000 characters.
func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > 1000 {
		return models.NewValidationError("bio must be at most 1000 characters")
	}
	return nil
}

// ValidateImageURL accepts an empty value or an absolute http(s) URL.
func ValidateImageURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewValidationError("image must be an absolute http(s) URL")
	}
	return nil
}

// ValidateUser checks an updateUser payload. Username is validated after normalization.
func ValidateUser(in UserInput) error {
	if err := ValidateExternalID("user id", in.ExternalID); err != nil {
		return err
	}
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 30 {
		return models.NewValidationError("name must be between 3 and 30 characters")
	}
	if err := ValidateUsername(NormalizeHandle(in.Username)); err != nil {
		return err
	}
	if err := ValidateBio(in.Bio); err != nil {
		return err
	}
	return ValidateImageURL(in.Image)
}
