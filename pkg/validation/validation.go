package validation

import (
	"errors"
	"net/url"
	"strings"

	"github.com/rivo/uniseg"
)

var (
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message is too long")
)

// MaxMessageLength is the longest text, in user-perceived characters, the
// API accepts for one message.
const MaxMessageLength = 4096

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// NormalizePhone reduces a phone number to the digits-only form used as the
// transport address. A national 11-digit number starting with 8 is rewritten
// to the international 7 prefix.
func NormalizePhone(phone string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(phone), "+")

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if digits == "" {
		return "", ErrInvalidPhone
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", ErrInvalidPhone
	}

	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	return digits, nil
}

// ValidateURL ensures a non-empty valid URL when provided.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return errors.New("url must be valid")
	}
	return nil
}

// ValidateMessage rejects blank text and text longer than MaxMessageLength
// grapheme clusters, so an emoji with modifiers counts once.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if uniseg.GraphemeClusterCount(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
