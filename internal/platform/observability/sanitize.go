package observability

import (
	"strings"
	"unicode"
)

// Field limits for values copied from requests into logs and span attributes.
const (
	routeLimit     = 180
	methodLimit    = 10
	visitorIDLimit = 64
	addrLimit      = 64
	userAgentLimit = 256
)

// clean drops control characters and truncates to limit runes.
func clean(value string, limit int) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf := []rune(out); len(utf) > limit {
		out = string(utf[:limit])
	}
	return out
}

// SanitizeRoute bounds a route pattern or raw path. The empty route is reported as "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, routeLimit)
}

func SanitizeMethod(method string) string { return clean(method, methodLimit) }

// SanitizeVisitorID bounds the cookie visitor id before it reaches logs.
func SanitizeVisitorID(id string) string { return clean(id, visitorIDLimit) }
