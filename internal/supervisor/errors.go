package supervisor

import "errors"

type packageActiveError struct{ name string }

func (e packageActiveError) Error() string { return "package " + e.name + " is already active" }

// ErrPackageActive reports that a launch was rejected because another package
// is starting or running.
func ErrPackageActive(name string) error { return packageActiveError{name: name} }

func IsPackageActive(err error) bool {
	var ae packageActiveError
	return errors.As(err, &ae)
}
