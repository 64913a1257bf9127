package tutorauth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor used for every stored password hash
const BcryptCost = 12

// Reasons reported by PasswordPolicy.Validate
const (
	ReasonTooShort      = "too_short"
	ReasonMissingUpper  = "missing_upper"
	ReasonMissingLower  = "missing_lower"
	ReasonMissingDigit  = "missing_digit"
	ReasonMissingSymbol = "missing_symbol"
)

var reasonText = map[string]string{
	ReasonTooShort:      "be at least %d characters long",
	ReasonMissingUpper:  "contain an uppercase letter",
	ReasonMissingLower:  "contain a lowercase letter",
	ReasonMissingDigit:  "contain a number",
	ReasonMissingSymbol: "contain a special character",
}

// PasswordPolicy describes the strength rules for new passwords
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy: at least 8 characters with upper, lower, digit and symbol
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Validate checks pw against every rule and returns a single
// *ValidationError listing all the rules that failed, or nil.
func (p PasswordPolicy) Validate(pw string) error {
	var reasons []string
	if len([]rune(pw)) < p.MinLength {
		reasons = append(reasons, ReasonTooShort)
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, ReasonMissingUpper)
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, ReasonMissingLower)
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, ReasonMissingDigit)
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, ReasonMissingSymbol)
	}
	if len(reasons) == 0 {
		return nil
	}
	return &ValidationError{
		Field:   "password",
		Message: p.describe(reasons),
		Reasons: reasons,
	}
}

func (p PasswordPolicy) describe(reasons []string) string {
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		text := reasonText[r]
		if r == ReasonTooShort {
			text = fmt.Sprintf(text, p.MinLength)
		}
		parts = append(parts, text)
	}
	return "Password must " + strings.Join(parts, ", ")
}

// HashPassword hashes pw with bcrypt at BcryptCost
func HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares pw against a bcrypt hash in constant time
func CheckPassword(hash, pw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
