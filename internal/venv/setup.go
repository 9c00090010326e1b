package venv

import (
	"context"
	"fmt"
	"os"

	"packd/internal/common/fsutil"
	"packd/internal/procrun"
)

// Setup creates (or reuses) a virtual environment at path. With recreate set,
// any existing environment is deleted first. Without it, a valid existing
// environment is returned as-is; a partially-built one is rebuilt in place by
// re-running venv creation. A failed setup leaves the directory as-is for
// diagnosis; there is no rollback.
func (m *Manager) Setup(ctx context.Context, path string, recreate bool, onLine func(string)) (*Env, error) {
	env := &Env{Root: path, mgr: m}
	if recreate && fsutil.PathExists(path) {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove existing venv: %w", err)
		}
	}
	if isValid(env) {
		return env, nil
	}
	code, err := m.runner.RunStreaming(ctx, procrun.Cmd{
		Path: m.Python,
		Args: []string{"-m", "venv", path},
	}, onLine)
	if err != nil {
		return nil, fmt.Errorf("create venv at %s: %w", path, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("create venv at %s: exit code %d", path, code)
	}
	return env, nil
}

// isValid verifies the interpreter binary and the pyvenv.cfg marker exist.
func isValid(e *Env) bool {
	return fsutil.PathExists(e.PythonPath()) && fsutil.PathExists(cfgPath(e))
}

func cfgPath(e *Env) string {
	return e.Root + string(os.PathSeparator) + "pyvenv.cfg"
}
