// Package metrics holds the service's OpenTelemetry instruments. Init binds
// them to a meter once at startup; until then every recording is a no-op.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Request outcomes.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

type instruments struct {
	requests  metric.Int64Counter
	bytes     metric.Int64Counter
	rateLimit metric.Int64Counter
}

var (
	mu   sync.RWMutex
	inst = mustInstruments(noop.NewMeterProvider().Meter("upload"))
)

// Init creates the instruments on meter.
func Init(meter metric.Meter) error {
	i, err := newInstruments(meter)
	if err != nil {
		return err
	}
	mu.Lock()
	inst = i
	mu.Unlock()
	return nil
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	requests, err := meter.Int64Counter("upload_requests_total",
		metric.WithDescription("Upload API requests by scope and outcome."))
	if err != nil {
		return nil, err
	}
	bytes, err := meter.Int64Counter("upload_bytes_total",
		metric.WithDescription("Bytes confirmed into storage."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	rateLimit, err := meter.Int64Counter("upload_rate_limit_hits_total",
		metric.WithDescription("Admissions rejected by a quota tier."))
	if err != nil {
		return nil, err
	}
	return &instruments{requests: requests, bytes: bytes, rateLimit: rateLimit}, nil
}

func mustInstruments(meter metric.Meter) *instruments {
	i, err := newInstruments(meter)
	if err != nil {
		panic(err)
	}
	return i
}

func current() *instruments {
	mu.RLock()
	defer mu.RUnlock()
	return inst
}

// Scope returns "anon" or "user" for metric labels.
func Scope(anonymous bool) string {
	if anonymous {
		return "anon"
	}
	return "user"
}

// Request counts one API request.
func Request(ctx context.Context, scope, status string) {
	current().requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("status", status),
	))
}

// Bytes counts bytes confirmed for scope.
func Bytes(ctx context.Context, scope string, n int64) {
	if n <= 0 {
		return
	}
	current().bytes.Add(ctx, n, metric.WithAttributes(attribute.String("scope", scope)))
}

// RateLimitHit counts a rejection by the named quota tier.
func RateLimitHit(ctx context.Context, tier string) {
	current().rateLimit.Add(ctx, 1, metric.WithAttributes(attribute.String("type", tier)))
}
