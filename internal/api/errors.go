package api

import (
	"fmt"
	"net/http"
)

// APIError is the decoded ErrorResponse of a failed request.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	default:
		return "api error"
	}
}

// FromServer reports whether the body was a plantkeeper error document.
// Responses from other services carry no code.
func (e *APIError) FromServer() bool {
	return e != nil && e.Code != ""
}

// Rejected reports a client-side problem with the upload itself: its type is
// not allowed or its content does not match the declared type.
func (e *APIError) Rejected() bool {
	return e != nil && e.Status == http.StatusBadRequest && (e.ErrorCode == 1008 || e.ErrorCode == 1009)
}
