// Package api defines the wire types shared by the server and the client
// SDK: callable request/response payloads and the structured error
// envelope with its canonical error codes.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is a canonical callable error code.
type Code string

const (
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeInternal         Code = "INTERNAL"
)

// HTTPStatus maps a callable code to its transport status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the structured error envelope callable endpoints return.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the canonical code and a human-readable message.
type ErrorDetail struct {
	Status  Code   `json:"status"`
	Message string `json:"message"`
}

// CallableError is the client-side representation of a callable failure.
type CallableError struct {
	Code    Code
	Message string
}

func (e *CallableError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteError writes the structured error envelope with the code's
// transport status.
func WriteError(w http.ResponseWriter, code Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Status: code, Message: message}})
}

// GrantAdminRequest asks the server to promote the user with the given
// email to admin.
type GrantAdminRequest struct {
	Email string `json:"email"`
}

// GrantAdminResponse confirms a successful promotion.
type GrantAdminResponse struct {
	Message string `json:"message"`
}

// WhoAmIResponse describes the authenticated caller as the server sees it.
type WhoAmIResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Admin         bool   `json:"admin"`
}
