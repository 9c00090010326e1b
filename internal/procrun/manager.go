package procrun

import (
	"sync"
	"time"
)

// Stopper terminates a process, giving it up to grace before escalating.
type Stopper interface {
	Stop(grace time.Duration) error
}

// ProcManager tracks detached processes so shutdown can dispose of them with
// a bounded per-process grace period. Disposal is best-effort.
type ProcManager struct {
	mu    sync.Mutex
	procs map[Stopper]struct{}
}

func NewProcManager() *ProcManager {
	return &ProcManager{procs: make(map[Stopper]struct{})}
}

func (pm *ProcManager) Add(p Stopper) {
	if p == nil {
		return
	}
	pm.mu.Lock()
	pm.procs[p] = struct{}{}
	pm.mu.Unlock()
}

func (pm *ProcManager) Remove(p Stopper) {
	if p == nil {
		return
	}
	pm.mu.Lock()
	delete(pm.procs, p)
	pm.mu.Unlock()
}

// Len reports the number of tracked processes.
func (pm *ProcManager) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}

// StopAll terminates all tracked processes, giving each up to grace before
// escalating to kill. The first error is returned but disposal continues.
func (pm *ProcManager) StopAll(grace time.Duration) error {
	pm.mu.Lock()
	procs := make([]Stopper, 0, len(pm.procs))
	for p := range pm.procs {
		procs = append(procs, p)
	}
	pm.procs = make(map[Stopper]struct{})
	pm.mu.Unlock()

	var first error
	for _, p := range procs {
		if err := p.Stop(grace); err != nil && first == nil {
			first = err
		}
	}
	return first
}
