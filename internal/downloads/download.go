// Package downloads tracks long-running file downloads durably: each active
// download owns one on-disk record that is rewritten on every progress tick
// and deleted the moment the download reaches a terminal state. Records left
// behind by a crash are reloaded at startup so the caller can decide to
// resume or discard.
package downloads

import (
	"sync"

	"github.com/google/uuid"
)

// ProgressState is the lifecycle state of a tracked download.
type ProgressState string

const (
	StateIdle       ProgressState = "idle"
	StateInProgress ProgressState = "in_progress"
	StateSuccess    ProgressState = "success"
	StateFailed     ProgressState = "failed"
	StateCancelled  ProgressState = "cancelled"
)

// Terminal reports whether s is a terminal state.
func (s ProgressState) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Snapshot is the plain serialized view of one download: record files on disk
// and API listings carry this form. It holds no lock and copies freely.
type Snapshot struct {
	ID               uuid.UUID     `json:"id"`
	URI              string        `json:"uri"`
	DestDir          string        `json:"dest_dir"`
	FileName         string        `json:"file_name"`
	TempFileName     string        `json:"temp_file_name"`
	State            ProgressState `json:"state"`
	Percent          float64       `json:"percent"`
	SHA256           string        `json:"sha256,omitempty"`
	ContinuationKind string        `json:"continuation_kind,omitempty"`
}

// TrackedDownload is the live handle for one download. The identity fields
// are fixed at creation; State and Percent mutate under mu. Handles are
// shared by pointer only; copyable state leaves via Snapshot.
type TrackedDownload struct {
	ID               uuid.UUID
	URI              string
	DestDir          string
	FileName         string
	TempFileName     string
	SHA256           string
	ContinuationKind string

	mu       sync.Mutex
	State    ProgressState
	Percent  float64
	rec      *recordFile
	cancelFn func()
}

// Snapshot returns the serialized view under the download's lock.
func (d *TrackedDownload) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		ID:               d.ID,
		URI:              d.URI,
		DestDir:          d.DestDir,
		FileName:         d.FileName,
		TempFileName:     d.TempFileName,
		State:            d.State,
		Percent:          d.Percent,
		SHA256:           d.SHA256,
		ContinuationKind: d.ContinuationKind,
	}
}

// CurrentState returns the state under lock.
func (d *TrackedDownload) CurrentState() ProgressState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State
}
