package companies

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	phoneRe = regexp.MustCompile(`^(\+7|8)[0-9]{10}$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidationError reports an invalid form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizePhone strips whitespace and checks the Russian phone format
// (+7XXXXXXXXXX or 8XXXXXXXXXX). An empty phone is allowed.
func NormalizePhone(phone string) (string, error) {
	p := strings.Join(strings.Fields(phone), "")
	if p == "" {
		return "", nil
	}
	if !phoneRe.MatchString(p) {
		return "", &ValidationError{Field: "phone", Message: "expected +7XXXXXXXXXX or 8XXXXXXXXXX"}
	}
	return p, nil
}

// ValidateEmail checks an email address. An empty email is allowed.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if !emailRe.MatchString(email) {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	return nil
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "company_name", Message: "must not be empty"}
	}
	return nil
}
