package tutorauth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// RegisterInput is what a new local account is created from
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginInput is the body of a password login
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims names and normalizes the email in place
func (in *RegisterInput) Normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)
}

// Validate checks the shape of the input and the password against policy.
// Shape problems are reported before password strength.
func (in *RegisterInput) Validate(policy PasswordPolicy) error {
	if err := validateName("firstName", "First name", in.FirstName); err != nil {
		return err
	}
	if err := validateName("lastName", "Last name", in.LastName); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	return policy.Validate(in.Password)
}

// ValidateEmail checks the basic format of an email address
func ValidateEmail(email string) error {
	if email == "" {
		return NewValidationError("email", "Email is required")
	}
	if !emailRegex.MatchString(email) {
		return NewValidationError("email", "Please enter a valid email")
	}
	return nil
}

func validateName(field, label, v string) error {
	n := utf8.RuneCountInString(v)
	if n == 0 {
		return NewValidationError(field, label+" is required")
	}
	if n < 2 || n > 50 {
		return NewValidationError(field, label+" must be between 2 and 50 characters")
	}
	return nil
}

// splitDisplayName splits "Ada King Lovelace" into ("Ada", "King Lovelace")
func splitDisplayName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
