// Package validation contains input validation helpers for API payloads.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9 ()-]{5,20}$`)

const (
	maxNameLen   = 150
	maxRemarkLen = 2000
)

// ValidateGuestName validates a guest first or last name.
func ValidateGuestName(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > maxNameLen {
		return fmt.Errorf("%s must be at most %d characters", field, maxNameLen)
	}
	return nil
}

// ValidateEmail validates an email address format.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("email is not a valid address")
	}
	return nil
}

// ValidatePhone validates an optional phone number.
func ValidatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("phone number format is invalid")
	}
	return nil
}

// ValidateRemark bounds the free-text remark.
func ValidateRemark(remark string) error {
	if len(remark) > maxRemarkLen {
		return fmt.Errorf("remark must be at most %d characters", maxRemarkLen)
	}
	return nil
}
