package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/printforge/upload/internal/apperr"
)

// DefaultExt is used when a filename has no usable extension.
const DefaultExt = "bin"

const (
	anonPrefix = "anon/"
	userPrefix = "users/"
)

// AnonKey builds the key for a file owned by an anonymous session:
// anon/<session>/<file>.<ext>.
func AnonKey(sessionID, fileID, ext string) string {
	return fmt.Sprintf("%s%s/%s.%s", anonPrefix, sessionID, fileID, ext)
}

// UserKey builds the key for a file owned by a user: users/<user>/<file>.<ext>.
func UserKey(userID, fileID, ext string) string {
	return fmt.Sprintf("%s%s/%s.%s", userPrefix, userID, fileID, ext)
}

// IsAnonKey reports whether key lives in the anonymous namespace.
func IsAnonKey(key string) bool { return strings.HasPrefix(key, anonPrefix) }

// IsUserKey reports whether key belongs to userID.
func IsUserKey(key, userID string) bool {
	return strings.HasPrefix(key, userPrefix+userID+"/")
}

// Ext returns the extension of filename without the dot. Extensions that
// are empty or not alphanumeric fall back to DefaultExt.
func Ext(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" || len(ext) > 16 {
		return DefaultExt
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return DefaultExt
		}
	}
	return ext
}

// ValidateKey rejects keys that could address objects outside their
// namespace. It runs before any network call.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return apperr.New(apperr.KindValidation, "invalid_key", key, fmt.Errorf("%w: empty", ErrInvalidKey))
	case strings.Contains(key, ".."):
		return apperr.New(apperr.KindValidation, "invalid_key", key, fmt.Errorf("%w: contains '..'", ErrInvalidKey))
	case strings.HasPrefix(key, "/"):
		return apperr.New(apperr.KindValidation, "invalid_key", key, fmt.Errorf("%w: absolute", ErrInvalidKey))
	}
	return nil
}
