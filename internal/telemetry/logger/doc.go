// Package logger builds the log/slog loggers stablemem uses.
//
// Every logger shares one level that a configuration reload can change.
// Credentials are masked and blob payloads are logged as their size only.
// Records logged with a request context carry its request ID and the
// engine operation it maps to.
package logger
