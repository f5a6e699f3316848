// Package services provides repository interfaces and their SQLite and
// in-memory implementations. This layer bridges the raw SQLite store with
// the HTTP API.
package services

import "errors"

// Sentinel errors returned by repositories.
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key")
)

// MaxKeyLen bounds setting keys.
const MaxKeyLen = 128

// ValidKey reports whether key is a usable setting key: non-empty, at
// most MaxKeyLen bytes, made of letters, digits, '.', '_' and '-'.
func ValidKey(key string) bool {
	if key == "" || len(key) > MaxKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
