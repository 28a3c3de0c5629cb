// Package validation provides input validation helpers for the FraudGate API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). Decision and OTP
// payloads are small; anything bigger is garbage or abuse.
const MaxRequestSize = 64 << 10

// MaxStringLength is the maximum length accepted for free-text fields.
const MaxStringLength = 256

var (
	// codeRegex is the wire format for one-time codes: exactly 6 ASCII digits.
	codeRegex = regexp.MustCompile(`^\d{6}$`)
	// phoneRegex accepts E.164-style destinations: optional +, 7-15 digits.
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCode checks the one-time code wire format (6 ASCII digits,
// zero-padded, no separators). Format failures are rejected before they
// reach the challenge store.
func IsValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

// IsValidPhone checks whether a destination looks like a phone number.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// NormalizePhone strips spaces and dashes: "+1 267-500-8164" -> "+12675008164".
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	return phone
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidPhone checks if a field is a plausible phone destination.
func ValidPhone(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidPhone(value) {
			return &ValidationError{Field: field, Message: "must be a phone number (7-15 digits, optional +)"}
		}
		return nil
	}
}

// NonNegativeAmount checks that a transaction amount is finite and >= 0.
func NonNegativeAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 || value != value { // NaN compares unequal to itself
			return &ValidationError{Field: field, Message: "must be a non-negative amount"}
		}
		return nil
	}
}

// HourOfDay checks an hour value is within 0-23.
func HourOfDay(field string, value int) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 || value > 23 {
			return &ValidationError{Field: field, Message: "must be in 0-23"}
		}
		return nil
	}
}

// DayOfWeek checks a day-of-week value is within 0-6.
func DayOfWeek(field string, value int) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 || value > 6 {
			return &ValidationError{Field: field, Message: "must be in 0-6"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
