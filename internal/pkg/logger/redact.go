package logger

import "strings"

// RedactEmail masks the local part of an email address, keeping its first
// two characters: "john.doe@example.com" becomes "jo***@example.com". Local
// parts of two characters or fewer are masked entirely. Anything that is not
// a single local@domain pair becomes "***@***".
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	runes := []rune(local)
	if len(runes) > 2 {
		return string(runes[:2]) + "***@" + domain
	}
	return "***@" + domain
}
