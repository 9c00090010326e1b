// Package procrun wraps child-process execution behind a small surface:
// blocking runs with captured output, streaming runs that deliver merged
// stdout/stderr line-by-line, and detached runs with exit callbacks.
package procrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Cmd describes a single child-process invocation.
type Cmd struct {
	Path string
	Args []string
	Env  map[string]string // additional env vars, layered over os.Environ
	Dir  string            // working directory
}

// Result holds the outcome of a blocking Run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (c Cmd) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	// inherit environment, then layer overrides
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd
}

// Run executes c to completion, capturing stdout and stderr separately.
func Run(ctx context.Context, c Cmd) (Result, error) {
	cmd := c.build(ctx)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{ExitCode: exitCode(cmd, err), Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return res, wrapExecError(c.Path, res.ExitCode, stderr.String(), err)
	}
	return res, nil
}

// RunStreaming executes c to completion, delivering each output line to
// onLine. Stdout and stderr are merged; every physical line is delivered
// atomically and lines from one stream keep their emission order.
func RunStreaming(ctx context.Context, c Cmd, onLine func(string)) (int, error) {
	cmd := c.build(ctx)
	var stderrTail tailBuffer
	if err := startStreaming(cmd, onLine, &stderrTail); err != nil {
		return -1, wrapExecError(c.Path, -1, "", err)
	}
	err := cmd.Wait()
	code := exitCode(cmd, err)
	if err != nil {
		return code, wrapExecError(c.Path, code, stderrTail.String(), err)
	}
	return code, nil
}

// Proc is a handle to a detached child process started by Start.
type Proc struct {
	cmd  *exec.Cmd
	done chan struct{}
	mu   sync.Mutex
	code int
	err  error
}

// Start launches c detached: onLine receives merged output lines as they are
// emitted and onExit fires exactly once when the process terminates. Either
// callback may be nil.
func Start(ctx context.Context, c Cmd, onLine func(string), onExit func(exitCode int, err error)) (*Proc, error) {
	cmd := c.build(ctx)
	var stderrTail tailBuffer
	if err := startStreaming(cmd, onLine, &stderrTail); err != nil {
		return nil, wrapExecError(c.Path, -1, "", err)
	}
	p := &Proc{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		code := exitCode(cmd, err)
		if err != nil {
			err = wrapExecError(c.Path, code, stderrTail.String(), err)
		}
		p.mu.Lock()
		p.code = code
		p.err = err
		p.mu.Unlock()
		close(p.done)
		if onExit != nil {
			onExit(code, err)
		}
	}()
	return p, nil
}

// PID returns the OS process id, or 0 when the process never started.
func (p *Proc) PID() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// Done is closed once the process has exited.
func (p *Proc) Done() <-chan struct{} { return p.done }

// ExitCode reports the exit code after Done is closed; -1 before that.
func (p *Proc) ExitCode() int {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.code
	default:
		return -1
	}
}

// Stop terminates the process: SIGTERM first, then SIGKILL after grace.
// Returns once the process has exited or the kill was issued.
func (p *Proc) Stop(grace time.Duration) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// startStreaming wires merged line delivery onto cmd and starts it.
// A shared mutex keeps each delivered line atomic across the two streams.
func startStreaming(cmd *exec.Cmd, onLine func(string), stderrTail *tailBuffer) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	var mu sync.Mutex
	emit := func(line string) {
		if onLine == nil {
			return
		}
		mu.Lock()
		onLine(line)
		mu.Unlock()
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go scanLines(stdout, emit, nil)
	go scanLines(stderr, emit, stderrTail)
	return nil
}

func scanLines(r io.Reader, emit func(string), tail *tailBuffer) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		if tail != nil {
			tail.Add(line)
		}
		emit(line)
	}
}

// tailBuffer keeps the last few KiB of stderr for error context.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailLimit = 4096

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if len(t.buf) > tailLimit {
		t.buf = t.buf[len(t.buf)-tailLimit:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}
