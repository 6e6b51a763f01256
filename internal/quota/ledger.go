// Package quota accounts bytes uploaded per session, client IP and user
// and decides whether new uploads are admitted.
//
// Admission is advisory: CheckAdmission reads current usage, and usage only
// grows when Commit runs after an upload is confirmed. Concurrent uploads
// from one identity can therefore each pass against the same snapshot; the
// over-admission is bounded by what is in flight at once.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/printforge/upload/internal/apperr"
	"github.com/printforge/upload/internal/identity"
)

// Scope is a quota accounting axis.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeIP      Scope = "ip"
	ScopeUser    Scope = "user"
)

// Tier names a limit that can reject an upload.
type Tier string

const (
	TierSessionDaily Tier = "session_daily"
	TierIPDaily      Tier = "ip_daily"
	TierUserMonthly  Tier = "user_monthly"
	TierUserHourly   Tier = "user_hourly"
)

// ErrExceeded is wrapped by every admission rejection.
var ErrExceeded = errors.New("quota: exceeded")

// Limits are byte ceilings per tier.
type Limits struct {
	AnonDaily   int64
	IPDaily     int64
	UserMonthly int64
	UserHourly  int64
}

// Entry is one accumulated counter.
type Entry struct {
	Scope       Scope
	ScopeID     string
	PeriodStart time.Time
	BytesUsed   int64
}

// Store persists quota entries. Periods are UTC days.
type Store interface {
	// Usage sums bytes for scope/scopeID over days in [from, to].
	Usage(ctx context.Context, scope Scope, scopeID string, from, to time.Time) (int64, error)
	// RecentUserBytes sums sizes of files created after since in uploads
	// bound to userID, pending ones included.
	RecentUserBytes(ctx context.Context, userID string, since time.Time) (int64, error)
	// Add increments the entry for day, creating it when absent.
	Add(ctx context.Context, scope Scope, scopeID string, day time.Time, bytes int64) error
	// MoveSessionToUser re-keys all session entries onto the user scope,
	// merging into existing user entries. It returns the number of entries moved.
	MoveSessionToUser(ctx context.Context, sessionID, userID string) (int64, error)
}

// Ledger applies Limits over a Store.
type Ledger struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a Ledger.
func NewLedger(store Store, limits Limits, opts ...Option) *Ledger {
	l := &Ledger{store: store, limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Day truncates t to its UTC day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first UTC day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckAdmission returns nil when requested more bytes fit every tier that
// applies to id, or a QuotaExceeded error naming the first tier that does not.
// Anonymous identities are checked against the session then the IP tier;
// users against the monthly then the trailing-hour tier.
func (l *Ledger) CheckAdmission(ctx context.Context, id identity.Identity, ip string, requested int64) error {
	now := l.now()
	today := Day(now)

	if id.Anonymous() {
		used, err := l.store.Usage(ctx, ScopeSession, id.SessionID, today, today)
		if err != nil {
			return fmt.Errorf("session usage: %w", err)
		}
		if err := admit(TierSessionDaily, id.SessionID, used, requested, l.limits.AnonDaily); err != nil {
			return err
		}

		used, err = l.store.Usage(ctx, ScopeIP, ip, today, today)
		if err != nil {
			return fmt.Errorf("ip usage: %w", err)
		}
		return admit(TierIPDaily, ip, used, requested, l.limits.IPDaily)
	}

	used, err := l.store.Usage(ctx, ScopeUser, id.UserID, MonthStart(now), today)
	if err != nil {
		return fmt.Errorf("user usage: %w", err)
	}
	if err := admit(TierUserMonthly, id.UserID, used, requested, l.limits.UserMonthly); err != nil {
		return err
	}

	used, err = l.store.RecentUserBytes(ctx, id.UserID, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("user hourly usage: %w", err)
	}
	return admit(TierUserHourly, id.UserID, used, requested, l.limits.UserHourly)
}

func admit(tier Tier, subject string, used, requested, limit int64) error {
	// requested > limit-used avoids overflowing used+requested.
	if requested > limit-used {
		return apperr.New(apperr.KindQuotaExceeded, string(tier), subject,
			fmt.Errorf("%w: %d used + %d requested > %d", ErrExceeded, used, requested, limit))
	}
	return nil
}

// Commit debits bytes for a completed upload: session and IP entries for
// anonymous identities, the user entry otherwise. It must run exactly once
// per completed upload.
func (l *Ledger) Commit(ctx context.Context, id identity.Identity, ip string, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	today := Day(l.now())

	if id.Anonymous() {
		if err := l.store.Add(ctx, ScopeSession, id.SessionID, today, bytes); err != nil {
			return fmt.Errorf("commit session quota: %w", err)
		}
		if err := l.store.Add(ctx, ScopeIP, ip, today, bytes); err != nil {
			return fmt.Errorf("commit ip quota: %w", err)
		}
		return nil
	}

	if err := l.store.Add(ctx, ScopeUser, id.UserID, today, bytes); err != nil {
		return fmt.Errorf("commit user quota: %w", err)
	}
	return nil
}

// Rekey moves a session's accumulated usage onto userID, preserving every
// entry's period and value. IP entries are left alone.
func (l *Ledger) Rekey(ctx context.Context, sessionID, userID string) error {
	if _, err := l.store.MoveSessionToUser(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("rekey session quota: %w", err)
	}
	return nil
}

// Usage returns bytes recorded for scope/scopeID on day.
func (l *Ledger) Usage(ctx context.Context, scope Scope, scopeID string, day time.Time) (int64, error) {
	d := Day(day)
	return l.store.Usage(ctx, scope, scopeID, d, d)
}
