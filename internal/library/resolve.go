package library

import (
	"os"
	"path/filepath"
	"strings"

	"packd/internal/common/fsutil"
)

// pointerFile holds the persisted library path inside the user config dir.
const pointerFile = "library.txt"

// portableMarker next to the executable forces a portable layout.
const portableMarker = ".portable"

// ResolveRoot determines the library root without setting it, in order:
// explicit override, portable-mode marker next to the executable, persisted
// pointer file. An empty return means no root is configured yet.
func ResolveRoot(override string) (string, error) {
	if override != "" {
		return fsutil.ExpandHome(override)
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Join(filepath.Dir(exe), "portable")
		if fsutil.PathExists(filepath.Join(dir, portableMarker)) {
			return dir, nil
		}
	}
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", nil
	}
	b, err := os.ReadFile(filepath.Join(cfgDir, "packd", pointerFile))
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(b)), nil
}

// PersistRoot writes the pointer file so the next run finds the library.
func PersistRoot(root string) error {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(cfgDir, "packd")
	if err := fsutil.EnsureDir(dir); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pointerFile), []byte(root+"\n"), 0o644)
}
