// Package logger provides structured logging for gmdaily.
//
// It wraps zerolog behind a small Logger interface so packages can accept a
// logger without importing zerolog directly. Console output is always
// colourised; when LoggingConfig.File is set a JSON log is also written and
// rotated by lumberjack.
//
//	l, err := logger.New(&cfg.Logging)
//	l.WithField("account", "main").Info("check-in done")
//
// Tests use NewTestLogger to assert on captured messages, or NewNopLogger to
// discard output.
package logger
