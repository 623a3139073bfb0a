package shared

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RespondJSON writes v as a JSON body with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes the standard error envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// StatusForError maps domain sentinel errors onto HTTP status codes.
// Unknown errors map to 500 and should be logged by the caller.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateReference),
		errors.Is(err, ErrDuplicateAccountNumber),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrSameAccount),
		errors.Is(err, ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
