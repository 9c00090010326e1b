package venv

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ModuleSpec identifies the module:function target behind a console script.
type ModuleSpec struct {
	Module   string
	Function string
}

// GetEntryPoint resolves an installed console-script name to its underlying
// module:function target by scanning the environment's dist-info metadata.
// Needed for packages that must be launched via `python -m`-style invocation
// rather than a generated shim binary.
func (e *Env) GetEntryPoint(scriptName string) (ModuleSpec, error) {
	for _, dir := range e.sitePackagesDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if !ent.IsDir() || !strings.HasSuffix(ent.Name(), ".dist-info") {
				continue
			}
			epPath := filepath.Join(dir, ent.Name(), "entry_points.txt")
			spec, ok := findConsoleScript(epPath, scriptName)
			if ok {
				return spec, nil
			}
		}
	}
	return ModuleSpec{}, fmt.Errorf("console script %q not found in %s", scriptName, e.Root)
}

func (e *Env) sitePackagesDirs() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(e.Root, "Lib", "site-packages")}
	}
	libDir := filepath.Join(e.Root, "lib")
	entries, err := os.ReadDir(libDir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, ent := range entries {
		if ent.IsDir() && strings.HasPrefix(ent.Name(), "python") {
			dirs = append(dirs, filepath.Join(libDir, ent.Name(), "site-packages"))
		}
	}
	return dirs
}

// findConsoleScript parses an entry_points.txt file looking for scriptName in
// the [console_scripts] section.
func findConsoleScript(path, scriptName string) (ModuleSpec, bool) {
	f, err := os.Open(path)
	if err != nil {
		return ModuleSpec{}, false
	}
	defer f.Close()
	inSection := false
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inSection = line == "[console_scripts]"
			continue
		}
		if !inSection {
			continue
		}
		name, target, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(name) != scriptName {
			continue
		}
		target = strings.TrimSpace(target)
		// strip extras suffix like "mod:fn [extra]"
		if idx := strings.Index(target, "["); idx >= 0 {
			target = strings.TrimSpace(target[:idx])
		}
		mod, fn, _ := strings.Cut(target, ":")
		return ModuleSpec{Module: strings.TrimSpace(mod), Function: strings.TrimSpace(fn)}, true
	}
	return ModuleSpec{}, false
}
