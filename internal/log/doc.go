// Package log builds the slog loggers used across scopecrawl.
//
// Crawls carry request headers, cookies and sometimes credentials in proxy
// URLs. SecureHandler masks those before any handler formats them, so secrets
// from the config file never end up in terminal output or log files.
//
// The package adds one level, LevelCritical, above slog.LevelError.
package log
