// Package logger provides structured logging for the balancer and the
// signal nodes. It wraps log/slog and tags every record with the
// environment and the emitting service.
package logger
