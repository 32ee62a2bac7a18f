package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Roshandass172/bot1/internal/anomaly"
	"github.com/Roshandass172/bot1/internal/api/middleware"
	"github.com/Roshandass172/bot1/internal/dataset"
)

// APIError is the body of every error response.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes for common scenarios
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidData    = "INVALID_DATA"
	ErrCodeTooLarge       = "PAYLOAD_TOO_LARGE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// Client-facing validation messages.
const (
	MsgNoFilePart     = "No file part"
	MsgNoSelectedFile = "No selected file"
	MsgInvalidFormat  = "Invalid file format"
	MsgFileNotFound   = "File not found"
)

// ValidationError is a request the client must fix before retrying.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// classify maps an error to its HTTP status, code and client message.
func classify(err error) (int, string, string) {
	var (
		ve       *ValidationError
		se       *anomaly.SchemaError
		pe       *dataset.ParseError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrCodeInvalidRequest, ve.Message
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "File too large"
	case errors.As(err, &se), errors.As(err, &pe):
		return http.StatusUnprocessableEntity, ErrCodeInvalidData, err.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "Internal server error"
	}
}

// respondJSON encodes data before writing the status, so an encoding failure
// becomes a 500 instead of an empty response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(APIError{
			Error:     "Internal server error",
			Code:      ErrCodeInternalError,
			RequestID: w.Header().Get(middleware.ResponseRequestIDHeader),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func respondError(w http.ResponseWriter, status int, code, message, requestID string) {
	respondJSON(w, status, APIError{Error: message, Code: code, RequestID: requestID})
}
