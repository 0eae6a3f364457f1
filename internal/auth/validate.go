package auth

import (
	"regexp"
	"strings"
)

const minPasswordLength = 6

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)
	unsafeChars     = strings.NewReplacer("<", "", ">", "", "'", "", `"`, "", "&", "")
)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Sanitize trims the input and strips characters that are unsafe to echo into markup.
func Sanitize(input string) string {
	return unsafeChars.Replace(strings.TrimSpace(input))
}

// normalizeEmail is applied to emails on both the write and the lookup path.
func normalizeEmail(email string) string {
	return strings.ToLower(Sanitize(email))
}
