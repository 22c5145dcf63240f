package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Shugur-Network/roomchat/internal/logger"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// ErrorResponse is the JSON body written for a failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the client-visible fields of an AppError.
type ErrorBody struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorMiddleware logs errors and writes structured responses.
type ErrorMiddleware struct {
	logger *zap.Logger
}

func NewErrorMiddleware() *ErrorMiddleware {
	return &ErrorMiddleware{logger: logger.New("error_middleware")}
}

// HandleError converts err to an AppError, logs it and writes the response.
func (em *ErrorMiddleware) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := As(err)
	if !ok {
		appErr = Wrap(err, ErrorTypeInternal, "INTERNAL_ERROR", "an internal error occurred").
			WithSeverity(SeverityHigh)
	}
	if requestID := RequestID(r.Context()); requestID != "" {
		appErr.RequestID = requestID
	}

	em.logError(appErr, r)
	metrics.IncrementErrorCount(string(appErr.Type))
	em.sendErrorResponse(w, appErr)
}

func (em *ErrorMiddleware) logError(err *AppError, r *http.Request) {
	fields := []zap.Field{
		zap.String("error_type", string(err.Type)),
		zap.String("error_code", err.Code),
		zap.String("severity", string(err.Severity)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	}
	if err.RequestID != "" {
		fields = append(fields, zap.String("request_id", err.RequestID))
	}
	if err.Details != "" {
		fields = append(fields, zap.String("details", err.Details))
	}
	if err.StackTrace != "" {
		fields = append(fields, zap.String("stack_trace", err.StackTrace))
	}

	switch err.Severity {
	case SeverityLow:
		em.logger.Info(err.Message, fields...)
	case SeverityMedium:
		em.logger.Warn(err.Message, fields...)
	default:
		em.logger.Error(err.Message, fields...)
	}
}

func (em *ErrorMiddleware) sendErrorResponse(w http.ResponseWriter, err *AppError) {
	response := ErrorResponse{Error: ErrorBody{
		Type:      err.Type,
		Code:      err.Code,
		Message:   userMessage(err),
		Timestamp: err.Timestamp,
		RequestID: err.RequestID,
	}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err.Type))
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		em.logger.Error("Failed to encode error response", zap.Error(encodeErr))
	}
}

// RecoveryMiddleware turns handler panics into 500 responses.
func (em *ErrorMiddleware) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err, ok := recovered.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", recovered)
				}
				em.HandleError(w, r, Wrap(err, ErrorTypeInternal, "PANIC_RECOVERED", "handler panicked").
					WithSeverity(SeverityCritical))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// HandlerFunc is an http handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handler adapts a HandlerFunc to http.Handler, tagging each request with an ID.
type Handler struct {
	errorMiddleware *ErrorMiddleware
	handlerFunc     HandlerFunc
}

// WrapHandler returns an http.Handler that routes returned errors through the middleware.
func WrapHandler(handlerFunc HandlerFunc) http.Handler {
	return &Handler{
		errorMiddleware: NewErrorMiddleware(),
		handlerFunc:     handlerFunc,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
	w.Header().Set("X-Request-ID", requestID)

	if err := h.handlerFunc(w, r); err != nil {
		h.errorMiddleware.HandleError(w, r, err)
	}
}

// RequestID returns the ID attached by Handler, if any.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
