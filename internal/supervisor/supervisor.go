// Package supervisor launches installed packages inside their virtual
// environments and tracks their lifecycle: console output is scanned for a
// package-specific ready marker, exits are surfaced as events, and shutdown
// terminates the child with a bounded grace period.
package supervisor

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"packd/internal/packages"
	"packd/internal/venv"
)

// State is the lifecycle state of a launched package.
type State string

const (
	StateNotStarted State = "not-started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
	StateCrashed    State = "crashed"
)

// Supervisor launches and tracks at most one running package at a time. A
// launch while another package is starting or running is rejected with
// ErrPackageActive.
type Supervisor struct {
	venvs *venv.Manager
	pub   EventPublisher
	log   zerolog.Logger

	mu      sync.Mutex
	current *RunningPackage
}

func New(venvs *venv.Manager, log zerolog.Logger) *Supervisor {
	return &Supervisor{venvs: venvs, pub: noopPublisher{}, log: log}
}

// SetPublisher installs an EventPublisher for lifecycle events.
func (s *Supervisor) SetPublisher(p EventPublisher) {
	if p == nil {
		s.pub = noopPublisher{}
		return
	}
	s.pub = p
}

// Current returns the tracked running package, or nil.
func (s *Supervisor) Current() *RunningPackage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RunningPackage is the handle to one launched package.
type RunningPackage struct {
	PackageID string
	Name      string

	env *venv.Env
	pub EventPublisher
	log zerolog.Logger

	mu            sync.Mutex
	state         State
	readyRe       *regexp.Regexp
	readyFired    bool
	url           string
	stopRequested bool
	lastLines     []string
	onLine        func(string)
}

// Launch resolves the package's entry point, starts it detached inside its
// environment, and transitions to Starting. The ready marker match later
// flips the state to Running; there is no timeout on Starting, so a package
// whose marker never appears stays in Starting.
//
// The supervisor's lock is held from the active-package check through process
// start, so concurrent launches serialize and exactly one can win.
func (s *Supervisor) Launch(ctx context.Context, packageID, displayName, installDir string, def packages.Definition, args []string, onLine func(string)) (*RunningPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.current; cur != nil {
		if st := cur.State(); st == StateStarting || st == StateRunning {
			return nil, ErrPackageActive(cur.Name)
		}
	}

	env, err := s.venvs.Setup(ctx, packages.VenvDir(installDir), false, onLine)
	if err != nil {
		return nil, fmt.Errorf("environment for %s: %w", displayName, err)
	}
	env.WorkingDir = installDir

	argv, err := entryArgs(env, def)
	if err != nil {
		return nil, err
	}
	argv = append(argv, args...)

	var readyRe *regexp.Regexp
	if def.ReadyPattern != "" {
		readyRe, err = regexp.Compile(def.ReadyPattern)
		if err != nil {
			return nil, fmt.Errorf("bad ready pattern for %s: %w", def.Name, err)
		}
	}

	rp := &RunningPackage{
		PackageID: packageID,
		Name:      displayName,
		env:       env,
		pub:       s.pub,
		log:       s.log,
		state:     StateStarting,
		readyRe:   readyRe,
		onLine:    onLine,
	}

	h, err := env.RunDetached(ctx, argv, rp.handleLine, rp.handleExit)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", displayName, err)
	}
	s.log.Info().Str("package", displayName).Int("pid", h.PID()).Msg("package starting")
	s.pub.Publish(Event{Name: "launch_start", PackageID: packageID, Fields: map[string]any{"pid": h.PID()}})

	s.current = rp
	return rp, nil
}

// entryArgs builds the interpreter argument list for the package's entry
// point: a direct script, or a console-script shim resolved to module:function.
func entryArgs(env *venv.Env, def packages.Definition) ([]string, error) {
	if def.LaunchScript != "" {
		return []string{def.LaunchScript}, nil
	}
	spec, err := env.GetEntryPoint(def.LaunchConsoleScript)
	if err != nil {
		return nil, err
	}
	stub := fmt.Sprintf("import %s as _m; _m.%s()", spec.Module, spec.Function)
	return []string{"-c", stub}, nil
}

// State returns the current lifecycle state.
func (rp *RunningPackage) State() State {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.state
}

// URL returns the ready URL once the marker has matched, else "".
func (rp *RunningPackage) URL() string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.url
}

// LastOutput returns the most recent console lines for failure reports.
func (rp *RunningPackage) LastOutput() []string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return append([]string(nil), rp.lastLines...)
}

const lastLineKeep = 20

// handleLine forwards each console line and scans for the ready marker.
// Only the first match emits a startup-complete event.
func (rp *RunningPackage) handleLine(line string) {
	rp.mu.Lock()
	rp.lastLines = append(rp.lastLines, line)
	if len(rp.lastLines) > lastLineKeep {
		rp.lastLines = rp.lastLines[len(rp.lastLines)-lastLineKeep:]
	}
	onLine := rp.onLine
	var fireURL string
	if !rp.readyFired && rp.readyRe != nil {
		if m := rp.readyRe.FindStringSubmatch(line); m != nil {
			rp.readyFired = true
			rp.state = StateRunning
			if len(m) > 1 {
				rp.url = m[1]
			} else {
				rp.url = m[0]
			}
			fireURL = rp.url
		}
	}
	rp.mu.Unlock()

	if onLine != nil {
		onLine(line)
	}
	if fireURL != "" {
		rp.log.Info().Str("package", rp.Name).Str("url", fireURL).Msg("package ready")
		rp.pub.Publish(Event{Name: "startup_complete", PackageID: rp.PackageID, Fields: map[string]any{"url": fireURL}})
	}
}

// handleExit records the terminal state. A stop request yields Stopped; any
// other exit is Crashed. The caller decides whether that was a failure.
func (rp *RunningPackage) handleExit(code int, err error) {
	rp.mu.Lock()
	if rp.stopRequested {
		rp.state = StateStopped
	} else {
		rp.state = StateCrashed
	}
	st := rp.state
	rp.mu.Unlock()

	ev := rp.log.Info()
	if st == StateCrashed {
		ev = rp.log.Warn()
	}
	ev.Str("package", rp.Name).Int("exit_code", code).Err(err).Msg("package exited")
	fields := map[string]any{"exit_code": code}
	if err != nil {
		fields["error"] = err.Error()
	}
	rp.pub.Publish(Event{Name: "exit", PackageID: rp.PackageID, Fields: fields})
}

// Shutdown requests termination: graceful signal first, kill after grace.
// The state becomes Stopped unconditionally, whether or not the ready marker
// ever appeared.
func (rp *RunningPackage) Shutdown(grace time.Duration) error {
	rp.mu.Lock()
	rp.stopRequested = true
	rp.mu.Unlock()
	err := rp.env.StopProcess(grace)
	rp.mu.Lock()
	rp.state = StateStopped
	rp.mu.Unlock()
	rp.pub.Publish(Event{Name: "stopped", PackageID: rp.PackageID, Fields: map[string]any{}})
	return err
}
