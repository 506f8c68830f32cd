package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs one forum round-trip at a level derived from its status.
func LogRequest(l Logger, method, url string, statusCode int, took time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration":    took,
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("forum request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("forum request client error", fields)
	default:
		l.DebugWithFields("forum request completed", fields)
	}
}

// LogTaskResult logs the outcome of a one-shot reward action.
func LogTaskResult(l Logger, task, outcome string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"task":    task,
		"outcome": outcome,
	})
	if err != nil {
		entry.WithError(err).Warn("task failed")
		return
	}
	entry.Info("task finished")
}

// LogScanProgress logs how far a feed scan has got toward its quota.
func LogScanProgress(l Logger, page, successes, target int) {
	l.InfoWithFields("feed scan progress", map[string]interface{}{
		"page":      page,
		"successes": successes,
		"target":    target,
	})
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(string)                                       {}
func (n nopLogger) Info(string)                                        {}
func (n nopLogger) Warn(string)                                        {}
func (n nopLogger) Error(string)                                       {}
func (n nopLogger) WithField(string, interface{}) Logger               { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger           { return n }
func (n nopLogger) WithError(error) Logger                             { return n }
func (n nopLogger) WithContext(context.Context) Logger                 { return n }
func (n nopLogger) DebugWithFields(string, map[string]interface{})     {}
func (n nopLogger) InfoWithFields(string, map[string]interface{})      {}
func (n nopLogger) WarnWithFields(string, map[string]interface{})      {}
func (n nopLogger) ErrorWithFields(string, map[string]interface{})     {}
func (n nopLogger) GetZerolog() *zerolog.Logger                        { return nil }
