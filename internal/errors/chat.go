package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gorilla/websocket"
)

// WebSocketError classifies a transport failure by its close code.
func WebSocketError(operation string, cause error) *AppError {
	code := "WS_ERROR"
	severity := SeverityMedium

	switch {
	case websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		code, severity = "WS_CLOSED", SeverityLow
	case websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		code = "WS_UNEXPECTED_CLOSURE"
	case errors.Is(cause, net.ErrClosed), errors.Is(cause, io.EOF):
		code, severity = "WS_CONN_CLOSED", SeverityLow
	}

	return Wrap(cause, ErrorTypeNetwork, code, fmt.Sprintf("websocket %s failed", operation)).
		WithSeverity(severity)
}

// AuthenticationError rejects a handshake without a valid bearer token.
func AuthenticationError(reason string) *AppError {
	return New(ErrorTypeAuthentication, "AUTH_FAILED", fmt.Sprintf("authentication failed: %s", reason)).
		WithSeverity(SeverityLow).
		WithUserMessage("A valid bearer token is required to join a room.")
}

// InvalidRoomError rejects a path whose room segment is not a positive 32-bit integer.
func InvalidRoomError(raw string) *AppError {
	return New(ErrorTypeValidation, "INVALID_ROOM", "room id must be a positive 32-bit integer").
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("room: %q", raw)).
		WithUserMessage("Unknown room.")
}

// ConnectionLimitError rejects a handshake when the server is full.
func ConnectionLimitError(current, max int) *AppError {
	return New(ErrorTypeUnavailable, "CONNECTION_LIMIT_EXCEEDED",
		fmt.Sprintf("connection limit reached: %d/%d", current, max)).
		WithUserMessage("Too many active connections. Please try again later.")
}

// ConnectionThrottledError rejects a client opening connections too quickly.
func ConnectionThrottledError(clientIP string) *AppError {
	return New(ErrorTypeRateLimit, "HANDSHAKE_RATE_EXCEEDED", "handshake rate exceeded").
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("client_ip: %s", clientIP)).
		WithUserMessage("Too many connection attempts. Please slow down.")
}

// MessageRejectedError reports an inbound chat frame that failed validation.
func MessageRejectedError(code, reason string) *AppError {
	return New(ErrorTypeValidation, code, reason).
		WithSeverity(SeverityLow).
		WithUserMessage(reason)
}

// RateLimitError reports a client sending faster than its token bucket allows.
func RateLimitError() *AppError {
	return New(ErrorTypeRateLimit, "RATE_LIMITED", "message rate exceeded").
		WithSeverity(SeverityLow).
		WithUserMessage("You are sending messages too quickly.")
}

// DatabaseError wraps a failed store operation.
func DatabaseError(operation string, cause error) *AppError {
	errType, code := ErrorTypeDatabase, "DATABASE_ERROR"
	if errors.Is(cause, context.DeadlineExceeded) {
		errType, code = ErrorTypeTimeout, "DATABASE_TIMEOUT"
	}
	return Wrap(cause, errType, code, fmt.Sprintf("database %s failed", operation)).
		WithSeverity(SeverityHigh).
		WithUserMessage("Message could not be saved.")
}

// ConfigurationError reports an invalid setting discovered at startup.
func ConfigurationError(field, reason string) *AppError {
	return New(ErrorTypeInternal, "CONFIG_ERROR", fmt.Sprintf("configuration error in %s: %s", field, reason)).
		WithSeverity(SeverityCritical)
}

// InternalError wraps an unexpected failure.
func InternalError(message string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, "INTERNAL_ERROR", message).
		WithSeverity(SeverityHigh)
}

// IsRecoverable reports whether the operation may succeed if retried.
func IsRecoverable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeUnavailable:
		return true
	case ErrorTypeDatabase:
		return appErr.Severity != SeverityCritical
	default:
		return false
	}
}

// ShouldRetry combines IsRecoverable with an attempt budget.
func ShouldRetry(err error, attempt, maxAttempts int) bool {
	return attempt < maxAttempts && IsRecoverable(err)
}
