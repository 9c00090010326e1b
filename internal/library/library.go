// Package library owns the process-wide library root and the persisted set of
// installed packages. The root is set once per run; every other directory
// (packages, downloads, models) is derived from it at read time.
package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"packd/internal/common/fsutil"
)

// OptionType distinguishes boolean flags from valued arguments.
type OptionType string

const (
	OptionBool   OptionType = "bool"
	OptionString OptionType = "string"
)

// LaunchOption is a single configurable command-line argument owned by an
// InstalledPackage. Options at their default value are not persisted.
type LaunchOption struct {
	Name      string     `json:"name"`
	Type      OptionType `json:"type"`
	Value     string     `json:"value"`
	Enabled   bool       `json:"enabled"`
	IsDefault bool       `json:"is_default,omitempty"`
}

// InstalledPackage is the durable record of one installed package. LibraryPath
// is stored relative to the library root so the record survives library moves.
type InstalledPackage struct {
	ID              uuid.UUID      `json:"id"`
	DisplayName     string         `json:"display_name"`
	PackageName     string         `json:"package_name"`
	Version         string         `json:"version"`
	LibraryPath     string         `json:"library_path"`
	LaunchCommand   string         `json:"launch_command,omitempty"`
	LaunchArgs      []LaunchOption `json:"launch_args,omitempty"`
	ExtraLaunchArgs string         `json:"extra_launch_args,omitempty"`
	LastUpdateCheck time.Time      `json:"last_update_check"`
	UpdateAvailable bool           `json:"update_available"`
}

// Gateway is the settings/library boundary consumed by the orchestrator.
// The root is an explicit option: operations requiring it fail with ErrNotSet
// until SetRoot has been called.
type Gateway struct {
	mu       sync.RWMutex
	root     string
	rootSet  bool
	subs     []func(root string)
	packages map[uuid.UUID]*InstalledPackage
}

func New() *Gateway {
	return &Gateway{packages: make(map[uuid.UUID]*InstalledPackage)}
}

// Root returns the library root, or ErrNotSet before SetRoot.
func (g *Gateway) Root() (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.rootSet {
		return "", ErrNotSet
	}
	return g.root, nil
}

// SetRoot installs the library root, loads the installed-package index from
// disk, and fires pending OnRootSet subscriptions. Changing an already-set
// root is a reload: records are re-read from the new location.
func (g *Gateway) SetRoot(root string) error {
	root, err := fsutil.ExpandHome(root)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("abs path: %w", err)
	}
	if err := fsutil.EnsureDir(abs); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}

	g.mu.Lock()
	g.root = abs
	g.rootSet = true
	subs := append([]func(string){}, g.subs...)
	g.subs = nil
	g.mu.Unlock()

	if err := g.loadPackages(); err != nil {
		return err
	}
	for _, fn := range subs {
		fn(abs)
	}
	return nil
}

// OnRootSet registers fn to run once the library root is available. When the
// root is already set, fn runs immediately on the calling goroutine.
func (g *Gateway) OnRootSet(fn func(root string)) {
	g.mu.Lock()
	if g.rootSet {
		root := g.root
		g.mu.Unlock()
		fn(root)
		return
	}
	g.subs = append(g.subs, fn)
	g.mu.Unlock()
}

// Derived directories. Each is a pure function of the current root.

func (g *Gateway) PackagesDir() (string, error)  { return g.subdir("Packages") }
func (g *Gateway) DownloadsDir() (string, error) { return g.subdir("Downloads") }
func (g *Gateway) ModelsDir() (string, error)    { return g.subdir("Models") }

func (g *Gateway) subdir(name string) (string, error) {
	root, err := g.Root()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, name)
	if err := fsutil.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// InstalledPackages returns a snapshot of the installed-package records.
func (g *Gateway) InstalledPackages() []InstalledPackage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]InstalledPackage, 0, len(g.packages))
	for _, p := range g.packages {
		out = append(out, *p)
	}
	return out
}

// GetPackage returns a copy of the record for id.
func (g *Gateway) GetPackage(id uuid.UUID) (InstalledPackage, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.packages[id]
	if !ok {
		return InstalledPackage{}, ErrPackageNotFound(id.String())
	}
	return *p, nil
}

// SavePackage upserts pkg and persists the index. Absolute install paths
// under the root are rebased to library-relative before storage.
func (g *Gateway) SavePackage(pkg InstalledPackage) error {
	root, err := g.Root()
	if err != nil {
		return err
	}
	pkg.LibraryPath = fsutil.RelativeTo(root, pkg.LibraryPath)
	g.mu.Lock()
	cp := pkg
	g.packages[pkg.ID] = &cp
	g.mu.Unlock()
	return g.savePackages()
}

// RemovePackage deletes the record; when deleteDir is set the install
// directory is removed as well.
func (g *Gateway) RemovePackage(id uuid.UUID, deleteDir bool) error {
	root, err := g.Root()
	if err != nil {
		return err
	}
	g.mu.Lock()
	p, ok := g.packages[id]
	if !ok {
		g.mu.Unlock()
		return ErrPackageNotFound(id.String())
	}
	delete(g.packages, id)
	g.mu.Unlock()
	if deleteDir {
		dir := fsutil.ResolveUnder(root, p.LibraryPath)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove install dir: %w", err)
		}
	}
	return g.savePackages()
}

// InstallPath resolves the absolute install directory for id.
func (g *Gateway) InstallPath(id uuid.UUID) (string, error) {
	root, err := g.Root()
	if err != nil {
		return "", err
	}
	p, err := g.GetPackage(id)
	if err != nil {
		return "", err
	}
	return fsutil.ResolveUnder(root, p.LibraryPath), nil
}

// LaunchArgs returns the persisted launch options for id.
func (g *Gateway) LaunchArgs(id uuid.UUID) ([]LaunchOption, error) {
	p, err := g.GetPackage(id)
	if err != nil {
		return nil, err
	}
	return append([]LaunchOption(nil), p.LaunchArgs...), nil
}

// SaveLaunchArgs persists opts for id, dropping options still at their
// default so re-reads pick up new catalog defaults.
func (g *Gateway) SaveLaunchArgs(id uuid.UUID, opts []LaunchOption) error {
	g.mu.Lock()
	p, ok := g.packages[id]
	if !ok {
		g.mu.Unlock()
		return ErrPackageNotFound(id.String())
	}
	kept := make([]LaunchOption, 0, len(opts))
	for _, o := range opts {
		if o.IsDefault {
			continue
		}
		kept = append(kept, o)
	}
	p.LaunchArgs = kept
	g.mu.Unlock()
	return g.savePackages()
}

const indexFile = "packages.json"

func (g *Gateway) indexPath() (string, error) {
	root, err := g.Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, indexFile), nil
}

func (g *Gateway) loadPackages() error {
	path, err := g.indexPath()
	if err != nil {
		return err
	}
	root, _ := g.Root()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		g.mu.Lock()
		g.packages = make(map[uuid.UUID]*InstalledPackage)
		g.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read package index: %w", err)
	}
	var list []InstalledPackage
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("parse package index: %w", err)
	}
	pkgs := make(map[uuid.UUID]*InstalledPackage, len(list))
	migrated := false
	for i := range list {
		p := list[i]
		// Migrate legacy absolute paths so records survive library moves.
		if rel := fsutil.RelativeTo(root, p.LibraryPath); rel != p.LibraryPath {
			p.LibraryPath = rel
			migrated = true
		}
		pkgs[p.ID] = &p
	}
	g.mu.Lock()
	g.packages = pkgs
	g.mu.Unlock()
	if migrated {
		return g.savePackages()
	}
	return nil
}

func (g *Gateway) savePackages() error {
	path, err := g.indexPath()
	if err != nil {
		return err
	}
	g.mu.RLock()
	list := make([]InstalledPackage, 0, len(g.packages))
	for _, p := range g.packages {
		list = append(list, *p)
	}
	g.mu.RUnlock()
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
