package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/printforge/upload/internal/response"
	"github.com/printforge/upload/internal/ticket"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// TicketKey is the context key for the verified upload ticket.
const TicketKey contextKey = "uploadTicket"

const (
	// TicketHeader carries the signed upload ticket.
	TicketHeader = "X-Upload-Ticket"
	// InternalTokenHeader carries the shared service credential.
	InternalTokenHeader = "X-Internal-Token"
)

// TicketFrom returns the ticket injected by RequireTicket.
func TicketFrom(ctx context.Context) (*ticket.Ticket, bool) {
	t, ok := ctx.Value(TicketKey).(*ticket.Ticket)
	return t, ok && t != nil
}

// RequireTicket returns middleware that verifies the upload ticket header
// and injects the ticket into the request context.
func RequireTicket(secret string, now func() time.Time, log *slog.Logger) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(TicketHeader)
			if raw == "" {
				response.Unauthorized(w, "upload ticket required")
				return
			}

			t, err := ticket.Validate(raw, secret, now())
			if err != nil {
				response.FromError(w, r, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), TicketKey, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireInternalToken returns middleware that admits only callers
// presenting the shared service token. An empty token rejects everyone.
func RequireInternalToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(InternalTokenHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				response.Unauthorized(w, "invalid internal token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
