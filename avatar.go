package tutorauth

import (
	"net/url"
	"strings"
	"unicode"
)

const avatarBase = "https://api.dicebear.com/7.x"

// DefaultAvatarURL returns a deterministic avatar for an email address.
// The same email always yields the same URL.
func DefaultAvatarURL(email string) string {
	return avatarBase + "/avataaars/svg?seed=" + url.QueryEscape(NormalizeEmail(email)) +
		"&backgroundColor=00C9A7,845EC2,FFD700,FF6B6B&radius=50"
}

// InitialsAvatarURL returns an initials avatar for a display name
func InitialsAvatarURL(firstName, lastName string) string {
	initials := initial(firstName) + initial(lastName)
	if initials == "" {
		initials = "?"
	}
	return avatarBase + "/initials/svg?seed=" + url.QueryEscape(initials) +
		"&backgroundColor=00C9A7,845EC2,FFD700,FF6B6B&radius=50"
}

func initial(s string) string {
	for _, r := range strings.TrimSpace(s) {
		return string(unicode.ToUpper(r))
	}
	return ""
}
