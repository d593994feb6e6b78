package utils

import (
	"fmt"
	"regexp"
)

var (
	hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	badgeRegex    = regexp.MustCompile(`^\d{5}$`)
	controlRegex  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateHexColor validates a "#rrggbb" color string
func ValidateHexColor(color string) error {
	if !hexColorRegex.MatchString(color) {
		return fmt.Errorf("invalid hex color: %s", color)
	}
	return nil
}

// ValidateBadgeNumber validates a zero-padded five digit badge number
func ValidateBadgeNumber(badge string) error {
	if !badgeRegex.MatchString(badge) {
		return fmt.Errorf("invalid badge number: %s", badge)
	}
	return nil
}

// SanitizeString removes control characters from user-supplied text
func SanitizeString(s string) string {
	return controlRegex.ReplaceAllString(s, "")
}
