package packages

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"packd/internal/common/fsutil"
)

// ApplySharedFolders points the installed package at the central models
// directory using the selected strategy.
func ApplySharedFolders(def Definition, mode SharedFolderMode, installDir, modelsDir string) error {
	switch mode {
	case SharedNone, "":
		return nil
	case SharedSymlink:
		return applySymlinks(def, installDir, modelsDir)
	case SharedConfig:
		return rewriteConfig(def, installDir, modelsDir)
	default:
		return fmt.Errorf("unknown shared-folder mode: %s", mode)
	}
}

// applySymlinks replaces the package's own model directories with symlinks
// into the shared models tree. Existing empty directories are removed first;
// non-empty ones are left alone so user data is never clobbered.
func applySymlinks(def Definition, installDir, modelsDir string) error {
	for rel, shared := range def.SharedLayout {
		target := filepath.Join(modelsDir, shared)
		if err := fsutil.EnsureDir(target); err != nil {
			return err
		}
		link := filepath.Join(installDir, rel)
		if err := fsutil.EnsureDir(filepath.Dir(link)); err != nil {
			return err
		}
		if fi, err := os.Lstat(link); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				_ = os.Remove(link) // re-link
			} else if fi.IsDir() {
				entries, _ := os.ReadDir(link)
				if len(entries) > 0 {
					continue
				}
				_ = os.Remove(link)
			}
		}
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("link %s -> %s: %w", link, target, err)
		}
	}
	return nil
}

// rewriteConfig writes the package's shared-path config file pointing at the
// shared models tree.
func rewriteConfig(def Definition, installDir, modelsDir string) error {
	if def.ConfigFile == "" {
		return nil
	}
	path := filepath.Join(installDir, def.ConfigFile)
	doc := map[string]any{
		"packd": map[string]any{
			"base_path":   modelsDir,
			"checkpoints": filepath.Join(modelsDir, "StableDiffusion"),
			"loras":       filepath.Join(modelsDir, "Lora"),
			"vae":         filepath.Join(modelsDir, "VAE"),
			"embeddings":  filepath.Join(modelsDir, "TextualInversion"),
		},
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
