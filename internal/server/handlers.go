package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"plantkeeper/internal/api"
)

const defaultJSONMaxBody = 64 << 10 // 64 KiB

// writeErrorReq logs err at a level matching status and writes the JSON
// error body. Messages of server errors are replaced with "internal error".
func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code, numericCode := describeError(status, err)
	body := api.ErrorResponse{Error: err.Error(), Code: code, ErrorCode: numericCode}

	attrs := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		attrs = append(attrs, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}
	switch {
	case status >= 500:
		s.log().Error("request failed", attrs...)
		body.Error = "internal error"
	case status == http.StatusTooManyRequests:
		s.log().Warn("request throttled", attrs...)
	default:
		s.log().Debug("request rejected", attrs...)
	}

	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFound(err error) error {
	return makeAPIError(http.StatusNotFound, "not_found", ErrCodePlantNotFound, err)
}

func storageCorrupt(err error) error {
	return makeAPIError(http.StatusConflict, "failed_precondition", ErrCodeStorageCorrupt, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

func imageFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeImageFailure, err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

// describeError returns the string and numeric codes for err. Classified
// errors carry their own; anything else is described by status alone.
func describeError(status int, err error) (string, int) {
	code, numeric := "", defaultErrorCodeByStatus(status)
	switch status {
	case http.StatusBadRequest:
		code = "invalid_argument"
	case http.StatusNotFound:
		code = "not_found"
	case http.StatusMethodNotAllowed:
		code = "method_not_allowed"
	case http.StatusTooManyRequests:
		code = "resource_exhausted"
	case http.StatusInternalServerError:
		code = "internal"
	}

	var apiErr apiError
	if errors.As(err, &apiErr) {
		if apiErr.code != "" {
			code = apiErr.code
		}
		if apiErr.errCode > 0 {
			numeric = apiErr.errCode
		}
	}
	return code, numeric
}

// decodeJSON decodes a bounded request body into dst. An empty body is an
// error unless optional is set, in which case dst is left untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultJSONMaxBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeJSONReqOpt(w, r, dst, false)
}

func (s *Server) decodeJSONReqOpt(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := decodeJSON(w, r, dst, optional); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) pathIDOrBadRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parsePlantID(r.PathValue("id"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return 0, false
	}
	return id, true
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}
