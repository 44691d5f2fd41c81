package observability

import (
	"strings"
	"unicode"
)

const (
	maxFieldRunes  = 256
	maxRouteRunes  = 180
	maxMethodRunes = 10
	maxUserIDRunes = 64
)

// sanitizeString strips control characters and caps the rune count so
// attacker-controlled values cannot inject log lines or bloat entries.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldRunes
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)

	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute normalises a route pattern for log and metric labels.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, maxRouteRunes)
}

// SanitizeMethod normalises an HTTP method for log and metric labels.
func SanitizeMethod(method string) string {
	return sanitizeString(method, maxMethodRunes)
}

// SanitizeUserID caps caller identifiers before they reach logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, maxUserIDRunes)
}
