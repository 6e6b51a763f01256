// Package identity describes who owns an upload: an anonymous web session
// or an authenticated user, never both.
package identity

import (
	"errors"
	"strings"
)

// ErrInvalid is returned when an identity is not bound to exactly one owner.
var ErrInvalid = errors.New("identity: exactly one of session_id or user_id must be set")

// Identity binds uploads and quota to an owner. Exactly one field is set.
type Identity struct {
	SessionID string
	UserID    string
}

// Session returns an anonymous identity.
func Session(id string) Identity { return Identity{SessionID: id} }

// User returns an authenticated identity.
func User(id string) Identity { return Identity{UserID: id} }

// Anonymous reports whether the identity is a session.
func (i Identity) Anonymous() bool { return i.SessionID != "" && i.UserID == "" }

// ID returns the owner id regardless of kind.
func (i Identity) ID() string {
	if i.Anonymous() {
		return i.SessionID
	}
	return i.UserID
}

// Validate enforces the exactly-one rule and rejects ids that could escape
// their storage namespace.
func (i Identity) Validate() error {
	if (i.SessionID == "") == (i.UserID == "") {
		return ErrInvalid
	}
	if !SafeID(i.ID()) {
		return ErrInvalid
	}
	return nil
}

// SafeID reports whether id can be used as a single storage key segment.
func SafeID(id string) bool {
	return id != "" && !strings.Contains(id, "/") && !strings.Contains(id, "..")
}

func (i Identity) String() string {
	if i.Anonymous() {
		return "session:" + i.SessionID
	}
	return "user:" + i.UserID
}
