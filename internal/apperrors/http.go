package apperrors

import (
	"errors"
	"net/http"
)

// statusBySentinel lists the client error classifications in the order they
// are checked; anything unclassified (including ErrInternal) is a 500.
var statusBySentinel = []struct {
	sentinel error
	status   int
}{
	{ErrValidation, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrNotFound, http.StatusNotFound},
	{ErrConflict, http.StatusConflict},
}

// HTTPStatus maps a classified error to its HTTP status code.
func HTTPStatus(err error) int {
	for _, m := range statusBySentinel {
		if errors.Is(err, m.sentinel) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
