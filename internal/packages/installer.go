package packages

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"packd/internal/common/fsutil"
	"packd/internal/procrun"
	"packd/internal/venv"
)

// Stage is one named progress update. Indeterminate stages carry no fake
// percentage.
type Stage struct {
	Name          string
	Percent       float64
	Indeterminate bool
}

// ProgressFn receives stage updates during an install.
type ProgressFn func(Stage)

// InstallOptions selects the variant specifics for one install.
type InstallOptions struct {
	InstallDir   string
	Accelerator  Accelerator
	SharedMode   SharedFolderMode
	Version      string // branch or tag; empty uses the definition default
	RecreateVenv bool
	ModelsDir    string // shared models tree; empty skips folder linking
}

// gitRunner is the subset of process execution the installer needs outside
// the virtual environment.
type gitRunner interface {
	RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error)
}

type procGitRunner struct{}

func (procGitRunner) RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error) {
	return procrun.RunStreaming(ctx, c, onLine)
}

// Installer provisions package installs: sources, virtual environment,
// accelerator backend, requirements, shared folders, first-run config.
type Installer struct {
	Venvs *venv.Manager
	git   gitRunner
}

func NewInstaller(venvs *venv.Manager) *Installer {
	return &Installer{Venvs: venvs, git: procGitRunner{}}
}

// newInstallerWithGit is used by tests to intercept source fetching.
func newInstallerWithGit(venvs *venv.Manager, g gitRunner) *Installer {
	return &Installer{Venvs: venvs, git: g}
}

// VenvDir returns the environment path inside an install directory.
func VenvDir(installDir string) string { return filepath.Join(installDir, "venv") }

// Install runs the full installation sequence for def at opts.InstallDir.
// Any failing step aborts the remainder; no installed-package record is
// written here; the caller records the package only after success.
func (ins *Installer) Install(ctx context.Context, def Definition, opts InstallOptions, onLine func(string), progress ProgressFn) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		installsTotal.WithLabelValues(def.Name, result).Inc()
	}()
	if progress == nil {
		progress = func(Stage) {}
	}
	if !def.Supported(opts.Accelerator) {
		return ErrUnsupportedAccelerator(def.Name, string(opts.Accelerator))
	}

	progress(Stage{Name: "Fetching sources", Indeterminate: true})
	if err := ins.fetchSources(ctx, def, opts, onLine); err != nil {
		return err
	}

	progress(Stage{Name: "Creating virtual environment", Percent: 10})
	env, err := ins.Venvs.Setup(ctx, VenvDir(opts.InstallDir), opts.RecreateVenv, onLine)
	if err != nil {
		return err
	}
	env.WorkingDir = opts.InstallDir

	progress(Stage{Name: "Installing " + string(opts.Accelerator) + " backend", Indeterminate: true})
	torchArgs, err := TorchInstallArgs(opts.Accelerator)
	if err != nil {
		return err
	}
	if err := env.PipInstall(ctx, torchArgs, onLine); err != nil {
		return fmt.Errorf("install accelerator backend: %w", err)
	}

	progress(Stage{Name: "Installing requirements", Indeterminate: true})
	if err := ins.installRequirements(ctx, env, def, opts, onLine); err != nil {
		return err
	}

	if opts.ModelsDir != "" {
		progress(Stage{Name: "Linking shared folders", Percent: 90})
		if err := ApplySharedFolders(def, opts.SharedMode, opts.InstallDir, opts.ModelsDir); err != nil {
			return fmt.Errorf("shared folders: %w", err)
		}
	}

	if len(def.FirstRunArgs) > 0 {
		progress(Stage{Name: "Running first-time setup", Indeterminate: true})
		res, err := env.Run(ctx, def.FirstRunArgs...)
		if err != nil {
			return fmt.Errorf("first-run setup: %w", err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("first-run setup: exit code %d", res.ExitCode)
		}
	}

	progress(Stage{Name: "Install complete", Percent: 100})
	return nil
}

// fetchSources clones the repository on a fresh install or fast-forwards an
// existing checkout.
func (ins *Installer) fetchSources(ctx context.Context, def Definition, opts InstallOptions, onLine func(string)) error {
	branch := opts.Version
	if branch == "" {
		branch = def.DefaultBranch
	}
	if fsutil.PathExists(filepath.Join(opts.InstallDir, ".git")) {
		code, err := ins.git.RunStreaming(ctx, procrun.Cmd{
			Path: "git",
			Args: []string{"-C", opts.InstallDir, "pull", "--ff-only"},
		}, onLine)
		if err != nil {
			return fmt.Errorf("update sources: %w", err)
		}
		if code != 0 {
			return fmt.Errorf("update sources: exit code %d", code)
		}
		return nil
	}
	if err := fsutil.EnsureDir(filepath.Dir(opts.InstallDir)); err != nil {
		return err
	}
	code, err := ins.git.RunStreaming(ctx, procrun.Cmd{
		Path: "git",
		Args: []string{"clone", "--branch", branch, "--depth", "1", def.RepoURL, opts.InstallDir},
	}, onLine)
	if err != nil {
		return fmt.Errorf("clone sources: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("clone sources: exit code %d", code)
	}
	return nil
}

// installRequirements installs the pinned requirements list, excluding
// entries the accelerator step already satisfied.
func (ins *Installer) installRequirements(ctx context.Context, env *venv.Env, def Definition, opts InstallOptions, onLine func(string)) error {
	if def.RequirementsFile == "" {
		return nil
	}
	reqPath := filepath.Join(opts.InstallDir, def.RequirementsFile)
	if !fsutil.PathExists(reqPath) {
		return nil
	}
	var exclude *regexp.Regexp
	if def.TorchExclude != "" {
		re, err := regexp.Compile(def.TorchExclude)
		if err != nil {
			return fmt.Errorf("bad torch exclusion pattern for %s: %w", def.Name, err)
		}
		exclude = re
	}
	args, err := venv.PipArgs{}.WithRequirementsFile(reqPath, exclude)
	if err != nil {
		return err
	}
	if err := env.PipInstall(ctx, args, onLine); err != nil {
		return fmt.Errorf("install requirements: %w", err)
	}
	return nil
}
