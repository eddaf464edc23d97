// Package permission defines the dot-namespaced permission key type shared by
// the role grant tables, the bundle builder and the entitlement gate.
package permission

import (
	"errors"
	"strings"
)

// Key is a validated dot-namespaced permission key, conventionally
// <module>.<submodule>.<resource>.<action>.
type Key string

var ErrInvalidKey = errors.New("invalid_permission_key")

// ParseKey validates and normalizes a raw permission key.
func ParseKey(raw string) (Key, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", ErrInvalidKey
	}
	segments := strings.Split(key, ".")
	if len(segments) < 2 {
		return "", ErrInvalidKey
	}
	for _, segment := range segments {
		if segment == "" {
			return "", ErrInvalidKey
		}
	}
	return Key(key), nil
}

// Segments splits the key on dots.
func (k Key) Segments() []string {
	return strings.Split(string(k), ".")
}

// Action returns the trailing action segment.
func (k Key) Action() string {
	segments := k.Segments()
	return segments[len(segments)-1]
}

// Module returns the leading module segment.
func (k Key) Module() string {
	return k.Segments()[0]
}

// HasPrefix reports whether the key sits under the given dot prefix. A prefix
// only matches on segment boundaries: "crm.customers" matches
// "crm.customers.contact.read" but not "crm.customersx.read".
func (k Key) HasPrefix(prefix string) bool {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return false
	}
	s := string(k)
	if s == prefix {
		return true
	}
	return strings.HasPrefix(s, prefix+".")
}
