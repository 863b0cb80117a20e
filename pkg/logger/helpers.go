package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a completed HTTP request at a level matching its status.
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogPacing logs a pacing delay before a remote request.
func LogPacing(l Logger, kind, target string, delay time.Duration) {
	l.DebugWithFields("pacing before request", map[string]interface{}{
		"kind":   kind,
		"target": target,
		"delay":  delay,
	})
}

// LogRetry logs a failed attempt that will be retried after cooldown.
func LogRetry(l Logger, kind, target string, attempt, maxAttempts int, cooldown time.Duration, err error) {
	l.WithError(err).WarnWithFields("attempt failed, cooling down before retry", map[string]interface{}{
		"kind":         kind,
		"target":       target,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"cooldown":     cooldown,
	})
}

// LogBatchProgress logs batch progress in the periodic progress signal.
func LogBatchProgress(l Logger, target string, done, total int) {
	fields := map[string]interface{}{
		"target": target,
		"done":   done,
	}
	if total > 0 {
		fields["total"] = total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(done)/float64(total)*100)
	}
	l.InfoWithFields("batch progress", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
