package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// BundleVersionKey is the context key for the rule bundle version.
	BundleVersionKey contextKey = "bundle_version"

	// CategoryKey is the context key for the evaluated category.
	CategoryKey contextKey = "category"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithBundleVersion adds the bundle version to the context.
func WithBundleVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, BundleVersionKey, version)
}

// GetBundleVersion retrieves the bundle version from the context.
func GetBundleVersion(ctx context.Context) string {
	return stringValue(ctx, BundleVersionKey)
}

// WithCategory adds the evaluated category to the context.
func WithCategory(ctx context.Context, category string) context.Context {
	return context.WithValue(ctx, CategoryKey, category)
}

// GetCategory retrieves the evaluated category from the context.
func GetCategory(ctx context.Context) string {
	return stringValue(ctx, CategoryKey)
}

// FromContext returns logger with the context fields attached, for code that
// logs without passing the context to every call.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := fieldsFromContext(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

func fieldsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range []contextKey{RequestIDKey, BundleVersionKey, CategoryKey} {
		if v := stringValue(ctx, key); v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
