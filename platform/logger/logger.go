// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// MemberIDKey is the context key for the acting member ID
	MemberIDKey contextKey = "member_id"
	// TenantIDKey is the context key for tenant ID
	TenantIDKey contextKey = "tenant_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
	dev bool
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	dev := strings.EqualFold(env, "development")
	if dev {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		dev:    dev,
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, member_id, and tenant_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID)), dev: l.dev}
	}

	if memberID, ok := ctx.Value(MemberIDKey).(string); ok && memberID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("member_id", memberID)), dev: l.dev}
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("tenant_id", tenantID)), dev: l.dev}
	}

	return newLogger
}

// WithTenantID returns a logger with the tenant ID attached.
func (l *Logger) WithTenantID(tenantID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("tenant_id", tenantID)),
		dev:    l.dev,
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// WebhookEvent logs an inbound identity webhook event.
func (l *Logger) WebhookEvent(eventType, externalID string, handled bool) {
	if handled {
		l.Info("webhook_event",
			slog.String("event_type", eventType),
			slog.String("external_id", externalID),
		)
	} else {
		l.Warn("webhook_event_ignored",
			slog.String("event_type", eventType),
			slog.String("external_id", externalID),
		)
	}
}

// AuditWriteFailed logs a swallowed audit write failure. Audit writes are
// best-effort and must never break the business flow, so this is the only
// place the failure surfaces. Logged at Error level only in development.
func (l *Logger) AuditWriteFailed(entity, action string, err error) {
	if !l.dev {
		return
	}
	l.Error("audit_write_failed",
		slog.String("entity", entity),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
