// Package logging provides structured logging for the activation/signature
// core, adapted from the teacher's infrastructure/logging: a
// logrus-backed Logger with context-aware field injection, renamed from
// blockchain/user identifiers to activation/application ones.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through every façade call.
type ContextKey string

const (
	TraceIDKey      ContextKey = "trace_id"
	ActivationIDKey ContextKey = "activation_id"
	ApplicationIDKey ContextKey = "application_id"
)

// Logger wraps logrus.Logger with PowerAuth-specific field helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for service, with level/format as parsed by logrus.
func New(service, level, format string) *Logger {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry carrying the trace/activation/application
// fields present on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(ActivationIDKey); v != nil {
		entry = entry.WithField("activation_id", v)
	}
	if v := ctx.Value(ApplicationIDKey); v != nil {
		entry = entry.WithField("application_id", v)
	}
	return entry
}

// WithActivation attaches an activationId to ctx for subsequent logging.
func WithActivation(ctx context.Context, activationID string) context.Context {
	return context.WithValue(ctx, ActivationIDKey, activationID)
}

// WithApplication attaches an applicationId to ctx for subsequent logging.
func WithApplication(ctx context.Context, applicationID string) context.Context {
	return context.WithValue(ctx, ApplicationIDKey, applicationID)
}

// LogTransition logs an activation status transition, matching the
// teacher's LogAudit convention of a stable set of queryable fields.
func (l *Logger) LogTransition(ctx context.Context, activationID string, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"activation_id": activationID,
		"from_status":   from,
		"to_status":     to,
		"audit":         true,
	}).Info("activation status transition")
}

// LogSignatureAttempt logs the coarse outcome of a signature verification,
// deliberately omitting which factor or window step failed (§7
// "Observable behaviour").
func (l *Logger) LogSignatureAttempt(ctx context.Context, activationID string, succeeded bool, counter uint64) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"activation_id": activationID,
		"succeeded":     succeeded,
		"counter":       counter,
	})
	if succeeded {
		entry.Debug("signature verification succeeded")
	} else {
		entry.Warn("signature verification failed")
	}
}

// LogCallbackDelivery logs the outcome of an outbound notification attempt.
func (l *Logger) LogCallbackDelivery(ctx context.Context, activationID, url string, attempt int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"activation_id": activationID,
		"callback_url":  url,
		"attempt":       attempt,
	})
	if err != nil {
		entry.WithError(err).Warn("callback delivery failed")
	} else {
		entry.Debug("callback delivered")
	}
}
