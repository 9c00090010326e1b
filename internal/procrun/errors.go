package procrun

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecError carries enough context (path, exit code, stderr tail) for the
// caller to decide whether a failed child process is fatal.
type ExecError struct {
	Path       string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("exec %s: %v (exit code %d)", e.Path, e.Err, e.ExitCode)
	if tail := strings.TrimSpace(e.StderrTail); tail != "" {
		msg += "; stderr tail: " + tail
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

func wrapExecError(path string, code int, stderrTail string, err error) error {
	return &ExecError{Path: path, ExitCode: code, StderrTail: stderrTail, Err: err}
}

// IsNotFound reports whether err indicates the executable does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// IsExecError reports whether err is a child-process failure and returns it.
func IsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
