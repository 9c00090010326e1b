// Package venv creates and drives isolated Python environments: setup,
// dependency installation, and running commands or long-lived processes
// inside the environment.
package venv

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"packd/internal/procrun"
)

// Handle is a detached process started inside an environment.
type Handle interface {
	PID() int
	Stop(grace time.Duration) error
	Done() <-chan struct{}
}

// Runner abstracts child-process execution so installs can be exercised in
// tests without spawning real interpreters.
type Runner interface {
	Run(ctx context.Context, c procrun.Cmd) (procrun.Result, error)
	RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error)
	Start(ctx context.Context, c procrun.Cmd, onLine func(string), onExit func(exitCode int, err error)) (Handle, error)
}

type defaultRunner struct{}

func (defaultRunner) Run(ctx context.Context, c procrun.Cmd) (procrun.Result, error) {
	return procrun.Run(ctx, c)
}

func (defaultRunner) RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error) {
	return procrun.RunStreaming(ctx, c, onLine)
}

func (defaultRunner) Start(ctx context.Context, c procrun.Cmd, onLine func(string), onExit func(int, error)) (Handle, error) {
	return procrun.Start(ctx, c, onLine, onExit)
}

// Manager creates environment handles. Python is the base interpreter used
// for `python -m venv`; empty means "python3" from PATH. Every detached
// process started through any of the manager's environments is tracked so
// StopAll can dispose of them at shutdown.
type Manager struct {
	Python string
	runner Runner
	procs  *procrun.ProcManager
}

func NewManager(python string) *Manager {
	if python == "" {
		python = "python3"
	}
	return &Manager{Python: python, runner: defaultRunner{}, procs: procrun.NewProcManager()}
}

// NewManagerWithRunner is used by tests to substitute process execution.
func NewManagerWithRunner(python string, r Runner) *Manager {
	m := NewManager(python)
	m.runner = r
	return m
}

// StopAll terminates every detached process still tracked across the
// manager's environments, giving each up to grace before escalating.
func (m *Manager) StopAll(grace time.Duration) error {
	return m.procs.StopAll(grace)
}

// Env is a handle to one virtual environment. At most one detached process is
// tracked live per handle.
type Env struct {
	Root       string
	WorkingDir string
	Vars       map[string]string // extra env vars layered onto every run

	mgr  *Manager
	mu   sync.Mutex
	proc Handle
}

// PythonPath returns the environment's interpreter binary.
func (e *Env) PythonPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Root, "Scripts", "python.exe")
	}
	return filepath.Join(e.Root, "bin", "python")
}

func (e *Env) binDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Root, "Scripts")
	}
	return filepath.Join(e.Root, "bin")
}

// processEnv layers the activation variables over e.Vars.
func (e *Env) processEnv() map[string]string {
	env := make(map[string]string, len(e.Vars)+2)
	for k, v := range e.Vars {
		env[k] = v
	}
	env["VIRTUAL_ENV"] = e.Root
	env["PATH"] = e.binDir() + string(os.PathListSeparator) + os.Getenv("PATH")
	return env
}

func (e *Env) cmd(args []string) procrun.Cmd {
	return procrun.Cmd{
		Path: e.PythonPath(),
		Args: args,
		Env:  e.processEnv(),
		Dir:  e.WorkingDir,
	}
}

// Close stops any process still owned by the handle.
func (e *Env) Close() error {
	e.mu.Lock()
	p := e.proc
	e.proc = nil
	e.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Stop(2 * time.Second)
}
