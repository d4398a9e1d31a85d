// Package requestcontext carries per-request metadata (request id, client
// address, user agent) through context.Context.
package requestcontext

import "context"

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyClientIP  contextKey = "client_ip"
	keyUserAgent contextKey = "user_agent"
	keyClientBot contextKey = "client_bot"
)

// WithRequestID stores the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID returns the request id, or "" when none was set.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}

// WithClientMetadata stores the resolved client IP and raw User-Agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, ip)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

// ClientIP returns the client IP, or "" when the metadata middleware did not run.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(keyClientIP).(string)
	return v
}

// UserAgent returns the raw User-Agent header value.
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(keyUserAgent).(string)
	return v
}

// WithClientBot records whether the User-Agent identifies itself as a crawler.
func WithClientBot(ctx context.Context, bot bool) context.Context {
	return context.WithValue(ctx, keyClientBot, bot)
}

// ClientBot reports whether the client was classified as a self-declared bot.
func ClientBot(ctx context.Context) bool {
	v, _ := ctx.Value(keyClientBot).(bool)
	return v
}
