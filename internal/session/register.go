package session

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
)

// Registration messages.
const (
	MsgReservedName    = `Username or Email cannot contain "admin"`
	MsgInvalidEmail    = "Invalid email format"
	MsgWeakPassword    = "Password must be at least 8 characters long and contain both uppercase and lowercase letters"
	minPasswordLength  = 8
	reservedNameMarker = "admin"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateRegistration applies the client-side registration rules.
// Admin accounts are never self-registered.
func ValidateRegistration(d model.UserDraft) error {
	if strings.Contains(strings.ToLower(d.Username), reservedNameMarker) ||
		strings.Contains(strings.ToLower(d.Email), reservedNameMarker) {
		return failure.Validation(MsgReservedName)
	}
	if strings.TrimSpace(d.Username) == "" {
		return failure.Validation("Username is required")
	}
	if !emailPattern.MatchString(d.Email) {
		return failure.Validation(MsgInvalidEmail)
	}
	if !strongPassword(d.Password) {
		return failure.Validation(MsgWeakPassword)
	}
	return nil
}

func strongPassword(pw string) bool {
	if utf8.RuneCountInString(pw) < minPasswordLength {
		return false
	}
	var upper, lower bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	return upper && lower
}
