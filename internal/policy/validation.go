package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ashahealth/mediwagon/internal/gateway"
)

const (
	minPasswordLen = 8
	minAge         = 13
	maxAge         = 120
)

var (
	looseEmailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	phoneDigits       = regexp.MustCompile(`^\d{10,15}$`)
)

// ValidationError carries per-field messages for a rejected form. It never
// leaves the client: a form that fails validation is not submitted.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Registration is the sign-up form as entered, including the confirmation
// field the backend never sees.
type Registration struct {
	Profile         gateway.Profile
	ConfirmPassword string
}

// ValidateRegistration returns nil or a *ValidationError.
func ValidateRegistration(r Registration) error {
	fields := map[string]string{}
	p := r.Profile

	if strings.TrimSpace(p.Name) == "" {
		fields["name"] = "Full name is required."
	}
	if msg := checkEmail(p.Email); msg != "" {
		fields["email"] = msg
	}
	phone := strings.TrimSpace(p.Phone)
	switch {
	case phone == "":
		fields["phone"] = "Phone number is required."
	case !phoneDigits.MatchString(phone):
		fields["phone"] = "Phone must be 10 to 15 digits."
	}
	if p.Age < minAge || p.Age > maxAge {
		fields["age"] = fmt.Sprintf("You must be between %d and %d years old.", minAge, maxAge)
	}
	if msg := checkPassword(p.Password); msg != "" {
		fields["password"] = msg
	}
	switch {
	case r.ConfirmPassword == "":
		fields["confirm"] = "Please confirm your password."
	case r.ConfirmPassword != p.Password:
		fields["confirm"] = "Passwords do not match."
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateCredentials checks the sign-in form.
func ValidateCredentials(c gateway.Credentials) error {
	fields := map[string]string{}
	if msg := checkEmail(c.Email); msg != "" {
		fields["email"] = msg
	}
	if msg := checkPassword(c.Password); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkEmail(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "Email is required."
	}
	if !looseEmailPattern.MatchString(v) {
		return "Invalid email address."
	}
	return ""
}

func checkPassword(v string) string {
	if v == "" {
		return "Password is required."
	}
	if len(v) < minPasswordLen {
		return fmt.Sprintf("Password must be at least %d characters.", minPasswordLen)
	}
	return ""
}
