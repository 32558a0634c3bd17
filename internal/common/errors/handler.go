package errors

import (
	"habit-tracker/internal/common/metrics"
)

type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err, logs it against operation and counts it. The
// normalized error is returned so callers that propagate can do so.
func (h *ErrorHandler) Handle(operation string, err error, fields map[string]interface{}) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := h.normalizeError(err)
	h.logError(operation, stdErr, fields)
	metrics.ReminderErrors.WithLabelValues(operation, string(stdErr.Code)).Inc()
	return stdErr
}

func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

func (h *ErrorHandler) logError(operation string, stdErr *StandardError, extra map[string]interface{}) {
	fields := map[string]interface{}{
		"operation":     operation,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	h.logger.Error("Operation failed", fields)
}
