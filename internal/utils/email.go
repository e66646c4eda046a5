package utils

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	ErrEmailEmpty   = errors.New("`email` is empty")
	ErrEmailInvalid = errors.New("`email` is not valid")
)

// ValidateEmail accepts plain addr-spec emails only; display names and
// dotless domains are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailEmpty
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrEmailInvalid
	}
	if !emailRegex.MatchString(email) {
		return ErrEmailInvalid
	}
	return nil
}

// NormalizeEmail trims and lowercases an email and validates the result.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return email, ValidateEmail(email)
}
