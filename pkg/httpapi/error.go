package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// CodedError is implemented by errors that carry their own HTTP status and
// machine-readable code.
type CodedError interface {
	error
	HTTPStatus() int
	ErrorCode() string
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteErr maps err onto the envelope. Errors without a status become 500s
// with fallbackCode.
func WriteErr(w http.ResponseWriter, err error, fallbackCode string, meta map[string]string) error {
	var coded CodedError
	if errors.As(err, &coded) {
		status := coded.HTTPStatus()
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return WriteError(w, status, coded.ErrorCode(), coded.Error(), meta)
	}
	return WriteError(w, http.StatusInternalServerError, fallbackCode, err.Error(), meta)
}
