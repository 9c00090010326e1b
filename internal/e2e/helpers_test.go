package e2e

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"packd/internal/downloads"
	"packd/internal/httpapi"
	"packd/internal/library"
	"packd/internal/orchestrator"
	"packd/internal/packages"
	"packd/internal/procrun"
	"packd/internal/supervisor"
	"packd/internal/venv"
)

type fakeHandle struct {
	done chan struct{}
}

func (h *fakeHandle) PID() int { return 999 }

func (h *fakeHandle) Stop(grace time.Duration) error {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return nil
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

// fakeRunner stands in for real interpreters; the captured callbacks let
// tests script console output and process exit.
type fakeRunner struct {
	mu     sync.Mutex
	onLine func(string)
	onExit func(int, error)
}

func (f *fakeRunner) emitLine(s string) {
	f.mu.Lock()
	fn := f.onLine
	f.mu.Unlock()
	fn(s)
}

func (f *fakeRunner) emitExit(code int, err error) {
	f.mu.Lock()
	fn := f.onExit
	f.mu.Unlock()
	fn(code, err)
}

func (f *fakeRunner) Run(ctx context.Context, c procrun.Cmd) (procrun.Result, error) {
	return procrun.Result{}, nil
}

func (f *fakeRunner) RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error) {
	return 0, nil
}

func (f *fakeRunner) Start(ctx context.Context, c procrun.Cmd, onLine func(string), onExit func(int, error)) (venv.Handle, error) {
	f.mu.Lock()
	f.onLine = onLine
	f.onExit = onExit
	f.mu.Unlock()
	return &fakeHandle{done: make(chan struct{})}, nil
}

// newServerForLibrary wires a full in-process daemon against a temp library.
func newServerForLibrary(t *testing.T) (*httptest.Server, *library.Gateway, *fakeRunner) {
	t.Helper()
	lib := library.New()
	if err := lib.SetRoot(t.TempDir()); err != nil {
		t.Fatalf("set library root: %v", err)
	}
	runner := &fakeRunner{}
	venvs := venv.NewManagerWithRunner("python3", runner)
	sup := supervisor.New(venvs, zerolog.Nop())
	tracker := downloads.NewTracker(downloads.NewHTTPTransport(), lib.DownloadsDir, zerolog.Nop())
	ins := packages.NewInstaller(venvs)
	orch := orchestrator.New(lib, tracker, sup, ins, nil, time.Second, zerolog.Nop())

	srv := httptest.NewServer(httpapi.NewMux(orch))
	t.Cleanup(srv.Close)
	return srv, lib, runner
}

// seedInstalledPackage records an sd-webui install with a venv that passes
// validation, so launches skip environment creation.
func seedInstalledPackage(t *testing.T, lib *library.Gateway) library.InstalledPackage {
	t.Helper()
	pkgsDir, err := lib.PackagesDir()
	if err != nil {
		t.Fatal(err)
	}
	installDir := filepath.Join(pkgsDir, "sd-webui")
	venvDir := packages.VenvDir(installDir)
	if err := os.MkdirAll(filepath.Join(venvDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(venvDir, "bin", "python"), []byte("#!"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(venvDir, "pyvenv.cfg"), []byte("home = /usr"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := library.InstalledPackage{
		ID:          uuid.New(),
		DisplayName: "Stable Diffusion WebUI",
		PackageName: "sd-webui",
		Version:     "master",
		LibraryPath: installDir,
	}
	if err := lib.SavePackage(rec); err != nil {
		t.Fatal(err)
	}
	return rec
}
