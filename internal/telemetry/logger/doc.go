// Package logger provides structured logging for the server.
//
// It wraps the standard library log/slog to provide structured JSON or text
// logging with automatic redaction of credentials, a process-wide level that
// can be changed at runtime, and request ID propagation through context.
package logger
