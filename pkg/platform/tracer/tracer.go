// Package tracer is a thin tracing abstraction over OpenTelemetry.
//
// Callers depend on Tracer and Span only. NoopTracer serves tests and
// OTelTracer adapts the global (or an injected) OpenTelemetry tracer.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span and marks it failed when err is non-nil.
	// It must be called exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanRelayDispatch = "relay.dispatch"
	SpanFormSubmit    = "forms.submit"
)

// Attribute keys.
const (
	AttrForm        = "form.name"
	AttrRole        = "form.role"
	AttrOutcome     = "form.outcome"
	AttrHTTPStatus  = "http.status_code"
	AttrRelayResult = "relay.result"
	AttrBreaker     = "relay.breaker_state"
)

// Event names.
const (
	EventBreakerOpened = "breaker.opened"
	EventBreakerClosed = "breaker.closed"
)
