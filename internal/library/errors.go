package library

import "errors"

// ErrNotSet is returned by operations that require the library root before it
// has been configured. Callers must fail fast rather than derive paths from a
// wrong location.
var ErrNotSet = errors.New("library directory is not set")

// IsNotSet reports whether err indicates an unconfigured library root.
func IsNotSet(err error) bool { return errors.Is(err, ErrNotSet) }

// packageNotFoundError signals an unknown installed-package id.
type packageNotFoundError struct{ id string }

func (e packageNotFoundError) Error() string { return "installed package not found: " + e.id }

func ErrPackageNotFound(id string) error { return packageNotFoundError{id: id} }

// IsPackageNotFound reports whether the error indicates a missing package id.
func IsPackageNotFound(err error) bool {
	var pe packageNotFoundError
	return errors.As(err, &pe)
}
