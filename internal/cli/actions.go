package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"packd/internal/downloads"
	"packd/internal/library"
	"packd/internal/orchestrator"
	"packd/internal/packages"
	"packd/internal/supervisor"
	"packd/internal/venv"
)

// localOrchestrator wires an orchestrator against the resolved library root
// for commands that run without the daemon (install, uninstall).
func localOrchestrator(cfg *Config) (*orchestrator.Orchestrator, error) {
	root, err := library.ResolveRoot(cfg.Library)
	if err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("no library configured: pass --library or run packd once")
	}
	lib := library.New()
	if err := lib.SetRoot(root); err != nil {
		return nil, err
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	venvs := venv.NewManager(envStr("PACKD_PYTHON", ""))
	sup := supervisor.New(venvs, log)
	tracker := downloads.NewTracker(downloads.NewHTTPTransport(), lib.DownloadsDir, log)
	ins := packages.NewInstaller(venvs)
	return orchestrator.New(lib, tracker, sup, ins, nil, 10*time.Second, log), nil
}

// fnInstall provisions a package type into the local library, streaming
// installer output to the console.
func fnInstall(cfg *Config, packageName, accel, version, shared string, recreateVenv bool) error {
	o, err := localOrchestrator(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := orchestrator.InstallRequest{
		PackageName:  packageName,
		Accelerator:  packages.Accelerator(accel),
		SharedMode:   packages.SharedFolderMode(shared),
		Version:      version,
		RecreateVenv: recreateVenv,
	}
	rec, err := o.InstallPackage(ctx, req,
		func(line string) { debug("%s", line) },
		func(st packages.Stage) {
			if st.Indeterminate {
				info("[install] %s", st.Name)
				return
			}
			info("[install] %s (%.0f%%)", st.Name, st.Percent)
		})
	if err != nil {
		return err
	}
	info("installed %s as %s", rec.PackageName, rec.ID)
	return nil
}

// fnUninstall removes an installed package from the local library.
func fnUninstall(cfg *Config, id string, deleteDir bool) error {
	o, err := localOrchestrator(cfg)
	if err != nil {
		return err
	}
	pid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid package id %q", id)
	}
	if err := o.UninstallPackage(pid, deleteDir); err != nil {
		return err
	}
	info("uninstalled %s", id)
	return nil
}
