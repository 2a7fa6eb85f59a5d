package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
)

// ErrorBody is the JSON shape of every error response. Kind is the reserr
// sentinel text when the error carries one.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// StatusFor maps an error to the HTTP status its kind deserves.
func StatusFor(err error) int {
	switch reserr.Kind(err) {
	case reserr.ErrUnknownCase, reserr.ErrUnknownVector:
		return http.StatusNotFound
	case reserr.ErrOutOfRange, reserr.ErrLengthMismatch, reserr.ErrMalformed:
		return http.StatusBadRequest
	case reserr.ErrInactiveCell, reserr.ErrInsufficientData, reserr.ErrEmptySelection:
		return http.StatusUnprocessableEntity
	case reserr.ErrClosed:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// WriteError writes err with the status picked by StatusFor. Internal errors
// are logged and their text is not echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error()}
	if k := reserr.Kind(err); k != nil {
		body.Kind = k.Error()
	}
	if status == http.StatusInternalServerError {
		monitoring.Logf("internal error: %v", err)
		body.Error = "internal error"
	}
	WriteJSON(w, status, body)
}

// DecodeError turns an ErrorBody back into an error, restoring the reserr
// sentinel so that clients can branch with errors.Is.
func DecodeError(status int, body ErrorBody) error {
	return &StatusError{Status: status, Msg: body.Error, kind: reserr.FromText(body.Kind)}
}

// StatusError is a non-2xx response seen by a client.
type StatusError struct {
	Status int
	Msg    string
	kind   error
}

func (e *StatusError) Error() string {
	return http.StatusText(e.Status) + ": " + e.Msg
}

func (e *StatusError) Unwrap() error { return e.kind }

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}
