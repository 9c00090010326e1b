// Package orchestrator ties the library, installer, supervisor, and download
// tracker together behind the surface the HTTP API and CLI consume.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"packd/internal/downloads"
	"packd/internal/library"
	"packd/internal/packages"
	"packd/internal/supervisor"
	"packd/pkg/types"
)

type Orchestrator struct {
	lib       *library.Gateway
	tracker   *downloads.Tracker
	sup       *supervisor.Supervisor
	installer *packages.Installer
	prober    packages.Prober
	log       zerolog.Logger

	stopGrace time.Duration
	startedAt time.Time
}

func New(lib *library.Gateway, tracker *downloads.Tracker, sup *supervisor.Supervisor, installer *packages.Installer, prober packages.Prober, stopGrace time.Duration, log zerolog.Logger) *Orchestrator {
	if prober == nil {
		prober = packages.DefaultProber
	}
	if stopGrace <= 0 {
		stopGrace = 10 * time.Second
	}
	return &Orchestrator{
		lib:       lib,
		tracker:   tracker,
		sup:       sup,
		installer: installer,
		prober:    prober,
		log:       log,
		stopGrace: stopGrace,
		startedAt: time.Now(),
	}
}

// Ready reports whether a library root has been selected.
func (o *Orchestrator) Ready() bool {
	_, err := o.lib.Root()
	return err == nil
}

func (o *Orchestrator) Status() types.StatusResponse {
	resp := types.StatusResponse{
		ActiveDownloads: len(o.tracker.Active()),
		UptimeSeconds:   int64(time.Since(o.startedAt).Seconds()),
		ServerTimeUnix:  time.Now().Unix(),
	}
	if root, err := o.lib.Root(); err == nil {
		resp.LibraryRoot = root
		resp.InstalledPackages = len(o.lib.InstalledPackages())
	}
	if rp := o.sup.Current(); rp != nil {
		if st := rp.State(); st == supervisor.StateStarting || st == supervisor.StateRunning {
			info := o.packageInfo(rp.PackageID)
			info.State = string(st)
			resp.Running = &info
		}
	}
	return resp
}

func (o *Orchestrator) packageInfo(id string) types.PackageInfo {
	info := types.PackageInfo{ID: id}
	if pid, err := uuid.Parse(id); err == nil {
		if p, err := o.lib.GetPackage(pid); err == nil {
			info = packageToInfo(p)
		}
	}
	return info
}

func packageToInfo(p library.InstalledPackage) types.PackageInfo {
	return types.PackageInfo{
		ID:              p.ID.String(),
		DisplayName:     p.DisplayName,
		PackageName:     p.PackageName,
		Version:         p.Version,
		LibraryPath:     p.LibraryPath,
		UpdateAvailable: p.UpdateAvailable,
	}
}

func (o *Orchestrator) ListPackages() ([]types.PackageInfo, error) {
	if _, err := o.lib.Root(); err != nil {
		return nil, err
	}
	pkgs := o.lib.InstalledPackages()
	rp := o.sup.Current()
	out := make([]types.PackageInfo, 0, len(pkgs))
	for _, p := range pkgs {
		info := packageToInfo(p)
		if rp != nil && rp.PackageID == p.ID.String() {
			info.State = string(rp.State())
		}
		out = append(out, info)
	}
	return out, nil
}

// LaunchPackage starts the package identified by id. Only one package may be
// active at a time; a second launch while one is starting or running is a
// conflict.
func (o *Orchestrator) LaunchPackage(ctx context.Context, id string) (types.LaunchResponse, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return types.LaunchResponse{}, badRequest("invalid package id")
	}
	pkg, err := o.lib.GetPackage(pid)
	if err != nil {
		return types.LaunchResponse{}, err
	}
	def, err := packages.Get(pkg.PackageName)
	if err != nil {
		return types.LaunchResponse{}, err
	}
	installDir, err := o.lib.InstallPath(pid)
	if err != nil {
		return types.LaunchResponse{}, err
	}
	args := packages.BuildLaunchArgs(def, o.effectiveOptions(def, pkg), pkg.ExtraLaunchArgs)

	// The supervisor enforces the single-active-package rule under its own
	// lock; a rejected launch surfaces as a conflict.
	rp, err := o.sup.Launch(ctx, pkg.ID.String(), pkg.DisplayName, installDir, def, args, nil)
	if err != nil {
		if supervisor.IsPackageActive(err) {
			return types.LaunchResponse{}, conflict(err.Error())
		}
		return types.LaunchResponse{}, err
	}
	return types.LaunchResponse{ID: id, State: string(rp.State())}, nil
}

// effectiveOptions layers persisted launch options over hardware-aware
// defaults.
func (o *Orchestrator) effectiveOptions(def packages.Definition, pkg library.InstalledPackage) []library.LaunchOption {
	gpu := o.prober.Probe()
	opts := packages.DefaultOptions(def, gpu)
	byName := make(map[string]int, len(opts))
	for i, opt := range opts {
		byName[opt.Name] = i
	}
	for _, saved := range pkg.LaunchArgs {
		if i, ok := byName[saved.Name]; ok {
			opts[i] = saved
		} else {
			opts = append(opts, saved)
		}
	}
	return opts
}

// StopPackage requests shutdown of the running package.
func (o *Orchestrator) StopPackage(ctx context.Context, id string) error {
	rp := o.sup.Current()
	if rp == nil || rp.PackageID != id {
		return conflict("package is not running")
	}
	if st := rp.State(); st != supervisor.StateStarting && st != supervisor.StateRunning {
		return conflict(fmt.Sprintf("package is %s", st))
	}
	return rp.Shutdown(o.stopGrace)
}

func (o *Orchestrator) ListDownloads() []types.DownloadInfo {
	active := o.tracker.Active()
	out := make([]types.DownloadInfo, 0, len(active))
	for _, dl := range active {
		out = append(out, downloadToInfo(dl))
	}
	return out
}

func downloadToInfo(dl downloads.Snapshot) types.DownloadInfo {
	return types.DownloadInfo{
		ID:       dl.ID.String(),
		URI:      dl.URI,
		FileName: dl.FileName,
		State:    string(dl.State),
		Percent:  dl.Percent,
	}
}

// StartDownload registers and starts a tracked download into the library's
// downloads directory.
func (o *Orchestrator) StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadInfo, error) {
	dl, err := o.tracker.NewDownload(req.URI, req.FileName, req.SHA256, downloads.ConnectedModelKind)
	if err != nil {
		return types.DownloadInfo{}, err
	}
	if err := o.tracker.Start(ctx, dl); err != nil {
		return types.DownloadInfo{}, err
	}
	return downloadToInfo(dl.Snapshot()), nil
}

func (o *Orchestrator) CancelDownload(id string) error {
	did, err := uuid.Parse(id)
	if err != nil {
		return badRequest("invalid download id")
	}
	return o.tracker.Cancel(did)
}

// InstallRequest selects what to install and how.
type InstallRequest struct {
	PackageName  string
	DisplayName  string
	Accelerator  packages.Accelerator
	SharedMode   packages.SharedFolderMode
	Version      string
	RecreateVenv bool
}

// InstallPackage provisions a package and records it in the library. A
// package type already installed is updated in place, keeping its identity.
func (o *Orchestrator) InstallPackage(ctx context.Context, req InstallRequest, onLine func(string), progress packages.ProgressFn) (library.InstalledPackage, error) {
	def, err := packages.Get(req.PackageName)
	if err != nil {
		return library.InstalledPackage{}, err
	}
	pkgsDir, err := o.lib.PackagesDir()
	if err != nil {
		return library.InstalledPackage{}, err
	}

	rec := library.InstalledPackage{ID: uuid.New(), PackageName: def.Name, DisplayName: def.DisplayName}
	installDir := filepath.Join(pkgsDir, def.Name)
	for _, existing := range o.lib.InstalledPackages() {
		if existing.PackageName == def.Name {
			rec = existing
			dir, err := o.lib.InstallPath(existing.ID)
			if err != nil {
				return library.InstalledPackage{}, err
			}
			installDir = dir
			break
		}
	}
	if req.DisplayName != "" {
		rec.DisplayName = req.DisplayName
	}

	mode := req.SharedMode
	if mode == "" {
		mode = def.DefaultShared
	}
	modelsDir := ""
	if def.Capabilities.SupportsSharedFolders && mode != packages.SharedNone {
		modelsDir, err = o.lib.ModelsDir()
		if err != nil {
			return library.InstalledPackage{}, err
		}
	}

	opts := packages.InstallOptions{
		InstallDir:   installDir,
		Accelerator:  req.Accelerator,
		SharedMode:   mode,
		Version:      req.Version,
		RecreateVenv: req.RecreateVenv,
		ModelsDir:    modelsDir,
	}
	if err := o.installer.Install(ctx, def, opts, onLine, progress); err != nil {
		return library.InstalledPackage{}, err
	}

	rec.Version = req.Version
	if rec.Version == "" {
		rec.Version = def.DefaultBranch
	}
	rec.LibraryPath = installDir
	rec.LastUpdateCheck = time.Now()
	rec.UpdateAvailable = false
	if err := o.lib.SavePackage(rec); err != nil {
		return library.InstalledPackage{}, err
	}
	o.log.Info().Str("package", rec.PackageName).Str("id", rec.ID.String()).Msg("package installed")
	return rec, nil
}

// UninstallPackage removes the record and, when deleteDir is set, the install
// directory. A running package is stopped first.
func (o *Orchestrator) UninstallPackage(id uuid.UUID, deleteDir bool) error {
	if rp := o.sup.Current(); rp != nil && rp.PackageID == id.String() {
		if st := rp.State(); st == supervisor.StateStarting || st == supervisor.StateRunning {
			if err := rp.Shutdown(o.stopGrace); err != nil {
				o.log.Warn().Err(err).Msg("stop before uninstall failed")
			}
		}
	}
	return o.lib.RemovePackage(id, deleteDir)
}

// Shutdown stops the running package and disposes active downloads, each
// bounded by ctx. Failures are logged, never fatal.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	if rp := o.sup.Current(); rp != nil {
		if st := rp.State(); st == supervisor.StateStarting || st == supervisor.StateRunning {
			if err := rp.Shutdown(o.stopGrace); err != nil {
				o.log.Warn().Err(err).Str("package", rp.Name).Msg("package stop failed during shutdown")
			}
		}
	}
	o.tracker.Shutdown(ctx)
}
