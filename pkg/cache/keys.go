package cache

import (
	"net/url"
	"strings"
)

// Key format version. Bump it when the layout below changes so that old
// shared-cache entries are never read back.
const keyVersion = "v1"

// PermissionKey returns the key of the effective permission set of a user in
// an application. Both parts are escaped so ids containing ':' cannot collide.
func PermissionKey(userID, applicationID string) string {
	return FormatKey("perms", userID, applicationID)
}

// FormatKey joins a namespace and escaped parts into a cache key
func FormatKey(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(keyVersion)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(url.QueryEscape(p))
	}
	return b.String()
}
