package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"huddle/internal/api"
	"huddle/internal/objectstore"
)

const maxJSONBody = 1 << 20

// APIError is an error with the HTTP status and code it is reported with.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

var codeStatus = map[string]int{
	api.CodeInvalidInput:   http.StatusBadRequest,
	api.CodeUnauthorized:   http.StatusUnauthorized,
	api.CodeForbidden:      http.StatusForbidden,
	api.CodeNotFound:       http.StatusNotFound,
	api.CodeConflict:       http.StatusConflict,
	api.CodeProposalClosed: http.StatusConflict,
	api.CodeInternal:       http.StatusInternalServerError,
}

// toAPIError maps service errors onto statuses. Unknown errors become a
// generic 500 so internal details are not leaked.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, objectstore.ErrTooLarge):
		return &APIError{Status: http.StatusRequestEntityTooLarge, Code: api.CodeInvalidInput, Message: err.Error()}
	case errors.Is(err, objectstore.ErrUnknownBucket), errors.Is(err, objectstore.ErrInvalidPath):
		return &APIError{Status: http.StatusBadRequest, Code: api.CodeInvalidInput, Message: err.Error()}
	}
	code := api.ErrorCode(err)
	if code == api.CodeInternal {
		return &APIError{Status: http.StatusInternalServerError, Code: code, Message: "internal server error"}
	}
	return &APIError{Status: codeStatus[code], Code: code, Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		log.Printf("httpserver: %v", err)
	}
	writeJSON(w, apiErr.Status, api.ErrorResponse{Error: apiErr.Message, Code: apiErr.Code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: msg, Code: api.CodeInvalidInput})
}

// decodeJSON reads a JSON body into v. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}
