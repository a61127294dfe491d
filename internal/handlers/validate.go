package handlers

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"proxyplayer/internal/models"
	"proxyplayer/internal/resolver"
)

// Validation limits for form fields.
const (
	minPasswordLen = 6
	maxTitleLen    = 255
	maxEmailLen    = 100
	maxURLLen      = 2048
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// ValidationError reports missing or malformed form input. Message is
// shown to the user as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// validateRegistration checks the public sign-up form.
func validateRegistration(username, email, password, confirm string) error {
	if username == "" || email == "" || password == "" || confirm == "" {
		return invalid("", "All fields are required")
	}
	if password != confirm {
		return invalid("confirm_password", "Passwords do not match")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return invalid("password", "Password must be at least 6 characters long")
	}
	if err := validateIdentity(username, email); err != nil {
		return err
	}
	return nil
}

// validateIdentity checks the username and email shared by every account form.
func validateIdentity(username, email string) error {
	if username == "" {
		return invalid("username", "Username is required")
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username", "Username must be 3-50 characters: letters, digits, '_' or '-'")
	}
	if email == "" {
		return invalid("email", "Email is required")
	}
	if len(email) > maxEmailLen {
		return invalid("email", "Invalid email format")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return invalid("email", "Invalid email format")
	}
	return nil
}

// validateAccount checks the admin add/edit user form. An empty password
// is allowed only when editing.
func validateAccount(username, email, password string, role models.Role, editing bool) error {
	if err := validateIdentity(username, email); err != nil {
		return err
	}
	if !role.Valid() {
		return invalid("role", "Invalid role")
	}
	if password == "" && !editing {
		return invalid("password", "Password is required")
	}
	if password != "" && utf8.RuneCountInString(password) < minPasswordLen {
		return invalid("password", "Password must be at least 6 characters long")
	}
	return nil
}

// validateVideo checks the add and edit video forms.
func validateVideo(title, fileID, subtitle string) error {
	if title == "" || fileID == "" {
		return invalid("", "Title and File ID are required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return invalid("title", "Title is too long (max 255 characters)")
	}
	if !resolver.ValidFileID(fileID) {
		return invalid("file_id", "Invalid File ID")
	}
	if len(subtitle) > maxURLLen {
		return invalid("subtitle", "Subtitle URL is too long")
	}
	return nil
}

// validateAdURL accepts an empty value or a URL on an allowed ad network.
func validateAdURL(adURL string, networks []string) error {
	if adURL == "" {
		return nil
	}
	if len(adURL) > maxURLLen || !resolver.ValidAdURL(adURL, networks) {
		return invalid("ad_url", "Ad URL must point to one of: "+strings.Join(networks, ", "))
	}
	return nil
}
