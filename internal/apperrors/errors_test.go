package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		status   int
	}{
		{"validation", Validation("cores", "cores must be between 1 and 16"), ErrValidation, http.StatusBadRequest},
		{"unauthorized", Unauthorized("Invalid API key"), ErrUnauthorized, http.StatusUnauthorized},
		{"not found", NotFound("job", "job_1733541234567"), ErrNotFound, http.StatusNotFound},
		{"conflict", Conflict("job", "job already registered"), ErrConflict, http.StatusConflict},
		{"internal", Internal("runner.start", errors.New("boom")), ErrInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestHTTPStatusUnknownError(t *testing.T) {
	t.Parallel()
	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(plain error) = %d, want 500", got)
	}
}

func TestWrappedClassification(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("stopping job: %w", NotFound("job", "mem_42"))
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped error lost its not-found classification")
	}
	if got := HTTPStatus(wrapped); got != http.StatusNotFound {
		t.Errorf("HTTPStatus(wrapped) = %d, want 404", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "job_99")
	if err.Error() != "job job_99 not found" {
		t.Errorf("Error() = %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected *Error")
	}
	if appErr.Resource != "job" {
		t.Errorf("Resource = %q, want job", appErr.Resource)
	}
}
