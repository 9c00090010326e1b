package downloads

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type downloadNotFoundError struct {
	id uuid.UUID
}

func (e *downloadNotFoundError) Error() string {
	return fmt.Sprintf("download not found: %s", e.id)
}

// ErrDownloadNotFound wraps id in a typed not-found error.
func ErrDownloadNotFound(id uuid.UUID) error {
	return &downloadNotFoundError{id: id}
}

// IsDownloadNotFound reports whether err is a download not-found error.
func IsDownloadNotFound(err error) bool {
	var e *downloadNotFoundError
	return errors.As(err, &e)
}
