package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"packd/internal/packages"
	"packd/internal/procrun"
	"packd/internal/venv"
)

// scriptedRunner hands the launch callbacks back to the test so it can drive
// console output and process exit.
type scriptedRunner struct {
	mu     sync.Mutex
	cmds   []procrun.Cmd
	onLine func(string)
	onExit func(int, error)
}

func (r *scriptedRunner) Run(ctx context.Context, c procrun.Cmd) (procrun.Result, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, c)
	r.mu.Unlock()
	return procrun.Result{}, nil
}

func (r *scriptedRunner) RunStreaming(ctx context.Context, c procrun.Cmd, onLine func(string)) (int, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, c)
	r.mu.Unlock()
	return 0, nil
}

func (r *scriptedRunner) Start(ctx context.Context, c procrun.Cmd, onLine func(string), onExit func(int, error)) (venv.Handle, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, c)
	r.onLine = onLine
	r.onExit = onExit
	r.mu.Unlock()
	return &scriptedHandle{r: r, done: make(chan struct{})}, nil
}

type scriptedHandle struct {
	r    *scriptedRunner
	once sync.Once
	done chan struct{}
}

func (h *scriptedHandle) PID() int { return 7 }
func (h *scriptedHandle) Stop(grace time.Duration) error {
	h.once.Do(func() {
		close(h.done)
		if h.r.onExit != nil {
			h.r.onExit(0, nil)
		}
	})
	return nil
}
func (h *scriptedHandle) Done() <-chan struct{} { return h.done }

func launchTestPackage(t *testing.T, r *scriptedRunner, pub EventPublisher) *RunningPackage {
	t.Helper()
	s := New(venv.NewManagerWithRunner("python3", r), zerolog.Nop())
	if pub != nil {
		s.SetPublisher(pub)
	}
	def, err := packages.Get("sd-webui")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rp, err := s.Launch(context.Background(), "pkg-1", "Stable Diffusion WebUI", t.TempDir(), def, []string{"--port", "7860"}, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := s.Current(); got != rp {
		t.Fatalf("Current() != launched handle")
	}
	return rp
}

func TestLaunch_StartsInStartingState(t *testing.T) {
	r := &scriptedRunner{}
	rp := launchTestPackage(t, r, nil)
	if rp.State() != StateStarting {
		t.Fatalf("state: %s", rp.State())
	}
	// venv create + detached launch
	if len(r.cmds) != 2 {
		t.Fatalf("commands: %d", len(r.cmds))
	}
	launch := r.cmds[1]
	if launch.Args[0] != "launch.py" {
		t.Fatalf("entry: %v", launch.Args)
	}
	if launch.Args[1] != "--port" || launch.Args[2] != "7860" {
		t.Fatalf("args not appended: %v", launch.Args)
	}
}

func TestLaunch_ConcurrentLaunchesAdmitExactlyOne(t *testing.T) {
	r := &scriptedRunner{}
	s := New(venv.NewManagerWithRunner("python3", r), zerolog.Nop())
	def, err := packages.Get("sd-webui")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	dir := t.TempDir()

	var wg sync.WaitGroup
	var mu sync.Mutex
	launched, rejected := 0, 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Launch(context.Background(), "pkg-1", "Stable Diffusion WebUI", dir, def, nil, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				launched++
			case IsPackageActive(err):
				rejected++
			default:
				t.Errorf("unexpected launch error: %v", err)
			}
		}()
	}
	wg.Wait()

	if launched != 1 || rejected != 3 {
		t.Fatalf("launched=%d rejected=%d, want 1 and 3", launched, rejected)
	}
	// exactly one detached start reached the runner
	starts := 0
	r.mu.Lock()
	for _, c := range r.cmds {
		if len(c.Args) > 0 && c.Args[0] != "-m" {
			starts++
		}
	}
	r.mu.Unlock()
	if starts != 1 {
		t.Fatalf("detached starts: %d", starts)
	}
}

func TestLaunch_AllowedAgainAfterExit(t *testing.T) {
	r := &scriptedRunner{}
	s := New(venv.NewManagerWithRunner("python3", r), zerolog.Nop())
	def, err := packages.Get("sd-webui")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	dir := t.TempDir()

	rp, err := s.Launch(context.Background(), "pkg-1", "Stable Diffusion WebUI", dir, def, nil, nil)
	if err != nil {
		t.Fatalf("first launch: %v", err)
	}
	if _, err := s.Launch(context.Background(), "pkg-1", "Stable Diffusion WebUI", dir, def, nil, nil); !IsPackageActive(err) {
		t.Fatalf("second launch while starting: %v", err)
	}

	r.onExit(1, nil)
	if rp.State() != StateCrashed {
		t.Fatalf("state after exit: %s", rp.State())
	}
	if _, err := s.Launch(context.Background(), "pkg-1", "Stable Diffusion WebUI", dir, def, nil, nil); err != nil {
		t.Fatalf("relaunch after exit: %v", err)
	}
}

func TestReadyMarker_EmitsExactlyOneStartupEvent(t *testing.T) {
	r := &scriptedRunner{}
	pub := NewMemoryPublisher()
	rp := launchTestPackage(t, r, pub)

	r.onLine("Loading weights...")
	if rp.State() != StateStarting {
		t.Fatalf("state flipped early: %s", rp.State())
	}
	r.onLine("Running on local URL:  http://127.0.0.1:7860")
	if rp.State() != StateRunning {
		t.Fatalf("state: %s", rp.State())
	}
	if rp.URL() != "http://127.0.0.1:7860" {
		t.Fatalf("url: %q", rp.URL())
	}
	// a second matching line must not emit a duplicate event
	r.onLine("Running on local URL:  http://127.0.0.1:9999")
	if rp.URL() != "http://127.0.0.1:7860" {
		t.Fatalf("url overwritten: %q", rp.URL())
	}

	count := 0
	for _, e := range pub.Events() {
		if e.Name == "startup_complete" {
			count++
			if e.Fields["url"] != "http://127.0.0.1:7860" {
				t.Fatalf("event url: %v", e.Fields["url"])
			}
		}
	}
	if count != 1 {
		t.Fatalf("startup_complete events: %d", count)
	}
}

func TestUnexpectedExit_TransitionsToCrashed(t *testing.T) {
	r := &scriptedRunner{}
	pub := NewMemoryPublisher()
	rp := launchTestPackage(t, r, pub)

	r.onExit(3, nil)
	if rp.State() != StateCrashed {
		t.Fatalf("state: %s", rp.State())
	}
	found := false
	for _, e := range pub.Events() {
		if e.Name == "exit" && e.Fields["exit_code"] == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no exit event: %v", pub.Events())
	}
}

func TestShutdown_StopsUnconditionally(t *testing.T) {
	r := &scriptedRunner{}
	pub := NewMemoryPublisher()
	rp := launchTestPackage(t, r, pub)

	// no ready marker ever appeared; shutdown must still work
	if err := rp.Shutdown(100 * time.Millisecond); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if rp.State() != StateStopped {
		t.Fatalf("state: %s", rp.State())
	}
}

func TestLastOutput_KeepsRecentLines(t *testing.T) {
	r := &scriptedRunner{}
	rp := launchTestPackage(t, r, nil)
	for i := 0; i < 50; i++ {
		r.onLine("line")
	}
	r.onLine("final")
	out := rp.LastOutput()
	if len(out) != lastLineKeep {
		t.Fatalf("kept %d lines", len(out))
	}
	if out[len(out)-1] != "final" {
		t.Fatalf("last line: %q", out[len(out)-1])
	}
}
