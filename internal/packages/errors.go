package packages

import "errors"

// Configuration errors fail fast with a user-actionable message; they are
// never silently defaulted.

type unknownPackageError struct{ name string }

func (e unknownPackageError) Error() string { return "unknown package type: " + e.name }

func ErrUnknownPackage(name string) error { return unknownPackageError{name: name} }

func IsUnknownPackage(err error) bool {
	var ue unknownPackageError
	return errors.As(err, &ue)
}

type unknownAcceleratorError struct{ name string }

func (e unknownAcceleratorError) Error() string { return "unknown accelerator type: " + e.name }

func ErrUnknownAccelerator(name string) error { return unknownAcceleratorError{name: name} }

func IsUnknownAccelerator(err error) bool {
	var ue unknownAcceleratorError
	return errors.As(err, &ue)
}

type unsupportedAcceleratorError struct{ pkg, accel string }

func (e unsupportedAcceleratorError) Error() string {
	return "package " + e.pkg + " does not support accelerator " + e.accel
}

func ErrUnsupportedAccelerator(pkg, accel string) error {
	return unsupportedAcceleratorError{pkg: pkg, accel: accel}
}

func IsUnsupportedAccelerator(err error) bool {
	var ue unsupportedAcceleratorError
	return errors.As(err, &ue)
}
