package order

import (
	"strings"
	"unicode/utf8"
)

const (
	minNameLength  = 2
	minPhoneDigits = 10
)

// Contact is what the buyer typed into the order form.
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Comment string `json:"comment"`
}

// Normalized trims every field.
func (c Contact) Normalized() Contact {
	return Contact{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Comment: strings.TrimSpace(c.Comment),
	}
}

// PhoneDigits strips every non-digit character.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate checks the contact fields and returns the first failure.
func (c Contact) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(c.Name)) < minNameLength {
		return &ValidationError{Field: FieldName}
	}
	if len(PhoneDigits(c.Phone)) < minPhoneDigits {
		return &ValidationError{Field: FieldPhone}
	}
	return nil
}
