package downloads

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// recordSuffix names durable record files inside the downloads directory.
const recordSuffix = ".tracked.json"

// recordFile serializes one download's durable record. The file handle is
// held open and owned exclusively for the download's lifetime; every write
// truncates and rewrites at offset 0 so the on-disk record always reflects
// the latest snapshot (only the latest state matters for recovery).
type recordFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openRecord(path string) (*recordFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open download record: %w", err)
	}
	return &recordFile{path: path, f: f}, nil
}

// Write replaces the record contents with the JSON encoding of snap.
func (r *recordFile) Write(snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil // already finalized
	}
	if _, err := r.f.Seek(0, 0); err != nil {
		return err
	}
	if err := r.f.Truncate(0); err != nil {
		return err
	}
	_, err = r.f.Write(b)
	return err
}

// Delete closes the handle and removes the record from disk.
func (r *recordFile) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	return os.Remove(r.path)
}
