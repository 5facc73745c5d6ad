package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Separator is the delimiter used in key construction
const Separator = ":"

// Key derives a deterministic cache key from an operation name and its
// argument tuple. Arguments are query-escaped, which encodes the separator
// as %3A, so an argument containing it can never collide with a different
// tuple.
//
//	Key("user_info", "Steve")          // "user_info:Steve"
//	Key("login_records", "Steve", "5") // "login_records:Steve:5"
func Key(operation string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, operation)
	for _, arg := range args {
		parts = append(parts, url.QueryEscape(arg))
	}
	return strings.Join(parts, Separator)
}

// Fingerprint returns a fixed-length, filesystem-safe digest of a key.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
