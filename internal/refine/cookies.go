package refine

import (
	"regexp"
	"strings"
)

// Only backend-relevant cookies are forwarded upstream. Everything else
// (identity-provider session cookies in particular) is dropped so the
// backend never sees end-user credentials.
var cookieAllowList = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^JSESSIONID$`),
	regexp.MustCompile(`(?i)^host$`),
	regexp.MustCompile(`(?i)^refine\.`),
	regexp.MustCompile(`(?i)^csrf`),
}

// SanitizeCookieHeader filters a raw Cookie header down to the allow-listed
// backend cookie pairs. Returns "" when nothing survives.
func SanitizeCookieHeader(rawCookie string) string {
	if rawCookie == "" {
		return ""
	}

	var allowed []string
	for _, token := range strings.Split(rawCookie, ";") {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			continue
		}
		eq := strings.Index(trimmed, "=")
		if eq <= 0 {
			continue
		}
		name := strings.TrimSpace(trimmed[:eq])
		for _, pattern := range cookieAllowList {
			if pattern.MatchString(name) {
				allowed = append(allowed, trimmed)
				break
			}
		}
	}

	return strings.Join(allowed, "; ")
}
