package venv

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"packd/internal/procrun"
)

// fakeRunner records commands instead of executing them.
type fakeRunner struct {
	mu       sync.Mutex
	cmds     []procrun.Cmd
	runErr   error
	exitCode int
	handles  []*fakeHandle
}

func (f *fakeRunner) record(c procrun.Cmd) {
	f.mu.Lock()
	f.cmds = append(f.cmds, c)
	f.mu.Unlock()
}

func (f *fakeRunner) Run(ctx context.Context, c procrun.Cmd) (procrun.Result, error) {
	f.record(c)
	return procrun.Result{ExitCode: f.exitCode}, f.runErr
}

func (f *fakeRunner) RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error) {
	f.record(c)
	return f.exitCode, f.runErr
}

func (f *fakeRunner) Start(ctx context.Context, c procrun.Cmd, onLine func(string), onExit func(int, error)) (Handle, error) {
	f.record(c)
	h := &fakeHandle{done: make(chan struct{}), onExit: onExit}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *fakeRunner) commands() []procrun.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]procrun.Cmd(nil), f.cmds...)
}

type fakeHandle struct {
	once   sync.Once
	done   chan struct{}
	onExit func(int, error)
}

func (h *fakeHandle) PID() int { return 42 }
func (h *fakeHandle) Stop(grace time.Duration) error {
	h.exit(0, nil)
	return nil
}
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) exit(code int, err error) {
	h.once.Do(func() {
		close(h.done)
		if h.onExit != nil {
			h.onExit(code, err)
		}
	})
}

// fakeExistingVenv lays down the files isValid checks for.
func fakeExistingVenv(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "venv")
	var py string
	if runtime.GOOS == "windows" {
		py = filepath.Join(root, "Scripts", "python.exe")
	} else {
		py = filepath.Join(root, "bin", "python")
	}
	if err := os.MkdirAll(filepath.Dir(py), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(py, []byte(""), 0o755); err != nil {
		t.Fatalf("write python: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "pyvenv.cfg"), []byte("home = /usr/bin\n"), 0o644); err != nil {
		t.Fatalf("write pyvenv.cfg: %v", err)
	}
	return root
}

func TestSetup_ReusesValidEnvironment(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	root := fakeExistingVenv(t)
	env, err := m.Setup(context.Background(), root, false, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if env.Root != root {
		t.Fatalf("root: %q", env.Root)
	}
	if len(fr.commands()) != 0 {
		t.Fatalf("expected no process launch for a valid venv, got %v", fr.commands())
	}
}

func TestSetup_RecreateDeletesAndRebuilds(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	root := fakeExistingVenv(t)
	if _, err := m.Setup(context.Background(), root, true, nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	cmds := fr.commands()
	if len(cmds) != 1 {
		t.Fatalf("expected one venv-creation run, got %d", len(cmds))
	}
	if cmds[0].Path != "python3" || cmds[0].Args[0] != "-m" || cmds[0].Args[1] != "venv" {
		t.Fatalf("unexpected command: %+v", cmds[0])
	}
	if _, err := os.Stat(filepath.Join(root, "pyvenv.cfg")); !os.IsNotExist(err) {
		t.Fatalf("old venv not deleted")
	}
}

func TestSetup_MissingInterpreterTriggersCreate(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	root := filepath.Join(t.TempDir(), "venv")
	if _, err := m.Setup(context.Background(), root, false, nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if len(fr.commands()) != 1 {
		t.Fatalf("expected venv creation, got %v", fr.commands())
	}
}

func TestPipArgs_Builder(t *testing.T) {
	args := PipArgs{}.
		WithPackage("torch", "2.1.2+cpu").
		WithIndex("https://download.pytorch.org/whl/cpu").
		WithPackage("xformers", "").
		WithRequirementsContent("numpy\ntorch==2.1.2 # already handled\n", regexp.MustCompile(`^torch$`))
	got := strings.Join(args.Args(), " ")
	want := "torch==2.1.2+cpu --index-url https://download.pytorch.org/whl/cpu xformers numpy"
	if got != want {
		t.Fatalf("args: %q want %q", got, want)
	}
}

func TestPipInstall_BuildsInterpreterCommand(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	env := &Env{Root: filepath.Join(t.TempDir(), "venv"), mgr: m}
	err := env.PipInstall(context.Background(), PipArgs{}.WithPackage("numpy", "1.26.4"), nil)
	if err != nil {
		t.Fatalf("PipInstall: %v", err)
	}
	cmds := fr.commands()
	if len(cmds) != 1 {
		t.Fatalf("commands: %v", cmds)
	}
	c := cmds[0]
	if c.Path != env.PythonPath() {
		t.Fatalf("interpreter: %q", c.Path)
	}
	joined := strings.Join(c.Args, " ")
	if joined != "-m pip install numpy==1.26.4" {
		t.Fatalf("args: %q", joined)
	}
	if c.Env["VIRTUAL_ENV"] != env.Root {
		t.Fatalf("VIRTUAL_ENV not set: %v", c.Env)
	}
}

func TestPipInstall_EmptyArgsIsNoop(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	env := &Env{Root: t.TempDir(), mgr: m}
	if err := env.PipInstall(context.Background(), PipArgs{}, nil); err != nil {
		t.Fatalf("PipInstall: %v", err)
	}
	if len(fr.commands()) != 0 {
		t.Fatalf("unexpected commands: %v", fr.commands())
	}
}

func TestRunDetached_SecondStartIsError(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	env := &Env{Root: t.TempDir(), mgr: m}
	h, err := env.RunDetached(context.Background(), []string{"launch.py"}, nil, nil)
	if err != nil {
		t.Fatalf("RunDetached: %v", err)
	}
	if _, err := env.RunDetached(context.Background(), []string{"launch.py"}, nil, nil); err != ErrProcessActive {
		t.Fatalf("expected ErrProcessActive, got %v", err)
	}
	// once the first process exits, a new one may start
	h.(*fakeHandle).exit(0, nil)
	if _, err := env.RunDetached(context.Background(), []string{"launch.py"}, nil, nil); err != nil {
		t.Fatalf("RunDetached after exit: %v", err)
	}
}

func TestStopAll_DisposesDetachedProcesses(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	envA := &Env{Root: t.TempDir(), mgr: m}
	envB := &Env{Root: t.TempDir(), mgr: m}
	ha, err := envA.RunDetached(context.Background(), []string{"launch.py"}, nil, nil)
	if err != nil {
		t.Fatalf("RunDetached: %v", err)
	}
	hb, err := envB.RunDetached(context.Background(), []string{"main.py"}, nil, nil)
	if err != nil {
		t.Fatalf("RunDetached: %v", err)
	}
	if err := m.StopAll(time.Second); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	for _, h := range []Handle{ha, hb} {
		select {
		case <-h.Done():
		default:
			t.Fatal("process survived StopAll")
		}
	}
	// a second StopAll finds nothing left to dispose
	if err := m.StopAll(time.Second); err != nil {
		t.Fatalf("StopAll again: %v", err)
	}
}

func TestStopAll_SkipsAlreadyExitedProcesses(t *testing.T) {
	fr := &fakeRunner{}
	m := NewManagerWithRunner("python3", fr)
	env := &Env{Root: t.TempDir(), mgr: m}
	h, err := env.RunDetached(context.Background(), []string{"launch.py"}, nil, nil)
	if err != nil {
		t.Fatalf("RunDetached: %v", err)
	}
	h.(*fakeHandle).exit(0, nil)
	if got := m.procs.Len(); got != 0 {
		t.Fatalf("tracked after exit: %d", got)
	}
	if err := m.StopAll(time.Second); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
}

func TestGetEntryPoint_ParsesConsoleScripts(t *testing.T) {
	root := t.TempDir()
	site := filepath.Join(root, "lib", "python3.11", "site-packages")
	distInfo := filepath.Join(site, "comfy_cli-1.0.0.dist-info")
	if err := os.MkdirAll(distInfo, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ep := "[console_scripts]\ncomfy = comfy_cli.__main__:main\nother = pkg.mod:run [extra]\n\n[gui_scripts]\nignored = x:y\n"
	if err := os.WriteFile(filepath.Join(distInfo, "entry_points.txt"), []byte(ep), 0o644); err != nil {
		t.Fatalf("write entry_points: %v", err)
	}
	env := &Env{Root: root}
	spec, err := env.GetEntryPoint("comfy")
	if err != nil {
		t.Fatalf("GetEntryPoint: %v", err)
	}
	if spec.Module != "comfy_cli.__main__" || spec.Function != "main" {
		t.Fatalf("spec: %+v", spec)
	}
	spec, err = env.GetEntryPoint("other")
	if err != nil {
		t.Fatalf("GetEntryPoint(other): %v", err)
	}
	if spec.Module != "pkg.mod" || spec.Function != "run" {
		t.Fatalf("spec: %+v", spec)
	}
	if _, err := env.GetEntryPoint("missing"); err == nil {
		t.Fatal("expected error for unknown script")
	}
}
