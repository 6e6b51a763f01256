// Package ticket verifies upload capability tickets: HS256-signed JWTs
// issued by the identity service that authorize one session or user to
// upload files up to a byte ceiling until the ticket expires.
package ticket

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/printforge/upload/internal/apperr"
	"github.com/printforge/upload/internal/identity"
)

var (
	// ErrInvalidSignature is returned when the token was not signed with the shared secret.
	ErrInvalidSignature = errors.New("ticket: invalid signature")
	// ErrMalformed is returned when the token or its claims cannot be decoded.
	ErrMalformed = errors.New("ticket: malformed")
	// ErrInvalidIdentity is returned unless exactly one of session_id/user_id is set.
	ErrInvalidIdentity = errors.New("ticket: exactly one of session_id or user_id must be set")
	// ErrExpired is returned when now is past the ticket's expiry.
	ErrExpired = errors.New("ticket: expired")
	// ErrInvalidLimit is returned when max_size_bytes is zero or out of range.
	ErrInvalidLimit = errors.New("ticket: max_size_bytes must be > 0")
)

// Ticket is a verified upload capability.
type Ticket struct {
	SessionID    string
	UserID       string
	FileName     string
	MaxSizeBytes int64
	ExpiresAt    time.Time
	IssuedAt     time.Time
}

// Identity returns the owner the ticket is bound to.
func (t *Ticket) Identity() identity.Identity {
	return identity.Identity{SessionID: t.SessionID, UserID: t.UserID}
}

// claims is the wire format. expires_at is an RFC 3339 timestamp written by
// the issuer next to the numeric exp claim.
type claims struct {
	jwt.RegisteredClaims
	SessionID    *string    `json:"session_id,omitempty"`
	UserID       *string    `json:"user_id,omitempty"`
	FileName     string     `json:"file_name"`
	MaxSizeBytes uint64     `json:"max_size_bytes"`
	Expiry       *time.Time `json:"expires_at,omitempty"`
}

// Validate verifies token against secret and checks the ticket's structure
// and freshness at now. It has no side effects.
func Validate(token, secret string, now time.Time) (*Ticket, error) {
	if secret == "" {
		return nil, errors.New("ticket: empty verification secret")
	}

	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, apperr.Auth("ticket_invalid_signature", fmt.Errorf("%w: %v", ErrInvalidSignature, err))
		}
		return nil, apperr.Auth("ticket_malformed", fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	t := &Ticket{FileName: c.FileName}
	if c.SessionID != nil {
		t.SessionID = *c.SessionID
	}
	if c.UserID != nil {
		t.UserID = *c.UserID
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	switch {
	case c.Expiry != nil:
		t.ExpiresAt = *c.Expiry
	case c.ExpiresAt != nil:
		t.ExpiresAt = c.ExpiresAt.Time
	default:
		return nil, apperr.Auth("ticket_malformed", fmt.Errorf("%w: no expiry claim", ErrMalformed))
	}

	if err := t.Identity().Validate(); err != nil {
		return nil, apperr.New(apperr.KindValidation, "ticket_invalid_identity", "session_id,user_id", ErrInvalidIdentity)
	}
	if now.After(t.ExpiresAt) {
		return nil, apperr.Auth("ticket_expired", fmt.Errorf("%w at %s", ErrExpired, t.ExpiresAt.Format(time.RFC3339)))
	}
	if c.MaxSizeBytes == 0 || c.MaxSizeBytes > math.MaxInt64 {
		return nil, apperr.New(apperr.KindValidation, "ticket_invalid_limit", "max_size_bytes", ErrInvalidLimit)
	}
	t.MaxSizeBytes = int64(c.MaxSizeBytes)

	return t, nil
}

// Sign encodes t in the wire format understood by Validate. Production
// tickets come from the identity service; this keeps local tooling and
// tests on the same format.
func Sign(t Ticket, secret string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
		},
		FileName: t.FileName,
	}
	if t.MaxSizeBytes > 0 {
		c.MaxSizeBytes = uint64(t.MaxSizeBytes)
	}
	if t.SessionID != "" {
		c.SessionID = &t.SessionID
	}
	if t.UserID != "" {
		c.UserID = &t.UserID
	}
	exp := t.ExpiresAt.UTC()
	c.Expiry = &exp

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
