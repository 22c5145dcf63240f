package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeDatabase       ErrorType = "database"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeInternal       ErrorType = "internal"
)

// ErrorSeverity controls the log level an error is reported at.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType     `json:"type"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Severity    ErrorSeverity `json:"severity"`
	Timestamp   time.Time     `json:"timestamp"`
	RequestID   string        `json:"request_id,omitempty"`
	UserMessage string        `json:"user_message,omitempty"`
	Cause       error         `json:"-"`
	StackTrace  string        `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError of medium severity.
func New(errorType ErrorType, code string, message string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// Wrap attaches type and code to an existing error.
func Wrap(err error, errorType ErrorType, code string, message string) *AppError {
	appErr := New(errorType, code, message)
	appErr.Cause = err
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	if severity == SeverityHigh || severity == SeverityCritical {
		e.StackTrace = captureStackTrace()
	}
	return e
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithUserMessage(message string) *AppError {
	e.UserMessage = message
	return e
}

func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps an error type to the status code returned to clients.
func HTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUnavailable, ErrorTypeNetwork:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func userMessage(err *AppError) string {
	if err.UserMessage != "" {
		return err.UserMessage
	}
	switch err.Type {
	case ErrorTypeValidation:
		return "The request contains invalid data."
	case ErrorTypeAuthentication:
		return "Authentication required."
	case ErrorTypeRateLimit:
		return "Too many requests. Please slow down."
	case ErrorTypeUnavailable:
		return "The server is at capacity. Please try again later."
	case ErrorTypeTimeout:
		return "The request timed out."
	default:
		return "An unexpected error occurred."
	}
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
