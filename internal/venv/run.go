package venv

import (
	"context"
	"errors"
	"time"

	"packd/internal/procrun"
)

// ErrProcessActive is returned by RunDetached when the handle already tracks
// a live process; the caller must stop it first.
var ErrProcessActive = errors.New("a process is already running in this environment")

// Run executes the interpreter with args inside the environment, blocking
// until completion and capturing output.
func (e *Env) Run(ctx context.Context, args ...string) (procrun.Result, error) {
	return e.mgr.runner.Run(ctx, e.cmd(args))
}

// RunDetached launches a long-lived interpreter process inside the
// environment. At most one detached process is tracked per handle; the
// manager also tracks it for shutdown disposal.
func (e *Env) RunDetached(ctx context.Context, args []string, onLine func(string), onExit func(exitCode int, err error)) (Handle, error) {
	e.mu.Lock()
	if e.proc != nil {
		select {
		case <-e.proc.Done():
			e.proc = nil // previous process already exited
		default:
			e.mu.Unlock()
			return nil, ErrProcessActive
		}
	}
	e.mu.Unlock()

	h, err := e.mgr.runner.Start(ctx, e.cmd(args), onLine, func(code int, err error) {
		e.mu.Lock()
		exited := e.proc
		e.proc = nil
		e.mu.Unlock()
		if exited != nil {
			e.mgr.procs.Remove(exited)
		}
		if onExit != nil {
			onExit(code, err)
		}
	})
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.proc = h
	e.mu.Unlock()
	e.mgr.procs.Add(h)
	return h, nil
}

// StopProcess terminates the tracked detached process, if any.
func (e *Env) StopProcess(grace time.Duration) error {
	e.mu.Lock()
	p := e.proc
	e.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Stop(grace)
}
