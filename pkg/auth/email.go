package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/tendant/simple-classroom/pkg/domain"
)

// Stricter than RFC 5322 for practical use.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const maxEmailLength = 254 // RFC 5321

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseEmail normalizes raw and checks it is a single bare address.
// Display-name forms like "Ann <ann@example.com>" are rejected.
func ParseEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" || len(email) > maxEmailLength {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", domain.ErrInvalidEmail
	}
	if !emailRegex.MatchString(email) {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

// CleanText trims s and strips control characters other than newline,
// carriage return and tab.
func CleanText(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
