package downloads

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"packd/internal/common/fsutil"
)

// ErrNoUniqueName is returned when repeated random suffixes all collide with
// existing files in the destination directory.
var ErrNoUniqueName = errors.New("could not generate a unique temporary file name")

const tempNameAttempts = 10

// randSuffix is swapped in tests for deterministic collisions.
var randSuffix = func() int { return 1000000 + rand.Intn(9000000) }

// tempFileName picks a collision-free in-progress name in dir, in the form
// "Unconfirmed 1234567.partial". The attempt count bounds an otherwise
// unbounded loop.
func tempFileName(dir string) (string, error) {
	for i := 0; i < tempNameAttempts; i++ {
		name := fmt.Sprintf("Unconfirmed %d.partial", randSuffix())
		if !fsutil.PathExists(filepath.Join(dir, name)) {
			return name, nil
		}
	}
	return "", ErrNoUniqueName
}
