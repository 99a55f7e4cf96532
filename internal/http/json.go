package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/courierd/courierd/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteMappedError renders an error that passed through the data layer. When
// the chain carries an AppError the response status and code follow its kind;
// anything else falls back to the provided params.
func WriteMappedError(w http.ResponseWriter, p ErrorParams) {
	var appErr *apperrors.AppError
	if !errors.As(p.Err, &appErr) {
		WriteError(w, p)
		return
	}

	code, errCode := p.Code, p.ErrCode
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		code, errCode = http.StatusNotFound, "not_found"
	case apperrors.ErrCodeConflict:
		code, errCode = http.StatusConflict, "conflict"
	case apperrors.ErrCodeValidation, apperrors.ErrCodeForeignKey:
		code, errCode = http.StatusBadRequest, "validation_failed"
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeCanceled:
		code, errCode = http.StatusServiceUnavailable, "unavailable"
	case apperrors.ErrCodeInternal:
		code, errCode = http.StatusInternalServerError, "internal_error"
	}

	body := map[string]string{"error": errCode, "message": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	WriteJSON(w, code, body)
}
