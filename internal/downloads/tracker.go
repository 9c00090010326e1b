package downloads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tracker manages the concurrent set of active downloads. The active map is
// shared across progress callbacks from multiple transports; each download's
// durable record access is serialized per-ID by its own record handle, never
// globally.
type Tracker struct {
	transport Transport
	dirFn     func() (string, error) // downloads directory provider
	log       zerolog.Logger

	mu            sync.RWMutex
	active        map[uuid.UUID]*TrackedDownload
	continuations map[string]Continuation
	wg            sync.WaitGroup
}

func NewTracker(transport Transport, dirFn func() (string, error), log zerolog.Logger) *Tracker {
	return &Tracker{
		transport:     transport,
		dirFn:         dirFn,
		log:           log,
		active:        make(map[uuid.UUID]*TrackedDownload),
		continuations: map[string]Continuation{ConnectedModelKind: ConnectedModelWriter{}},
	}
}

// RegisterContinuation makes a continuation kind available to downloads.
func (t *Tracker) RegisterContinuation(c Continuation) {
	t.mu.Lock()
	t.continuations[c.Kind()] = c
	t.mu.Unlock()
}

// NewDownload allocates a tracked download: a collision-free temp name, an
// initial durable record, and a handle in the active set. The download is
// not started; it returns in state Idle.
func (t *Tracker) NewDownload(uri, fileName, sha256Hex, continuationKind string) (*TrackedDownload, error) {
	dir, err := t.dirFn()
	if err != nil {
		return nil, err
	}
	if fileName == "" {
		fileName = filepath.Base(strings.SplitN(uri, "?", 2)[0])
	}
	tempName, err := tempFileName(dir)
	if err != nil {
		return nil, err
	}
	dl := &TrackedDownload{
		ID:               uuid.New(),
		URI:              uri,
		DestDir:          dir,
		FileName:         fileName,
		TempFileName:     tempName,
		State:            StateIdle,
		SHA256:           sha256Hex,
		ContinuationKind: continuationKind,
	}
	rec, err := openRecord(filepath.Join(dir, dl.ID.String()+recordSuffix))
	if err != nil {
		return nil, err
	}
	dl.rec = rec
	if err := rec.Write(dl.Snapshot()); err != nil {
		_ = rec.Delete()
		return nil, fmt.Errorf("persist download record: %w", err)
	}
	t.mu.Lock()
	t.active[dl.ID] = dl
	t.mu.Unlock()
	downloadsActive.Inc()
	return dl, nil
}

// Start transitions dl to InProgress and runs the transfer on a background
// goroutine. Every progress tick rewrites the durable record in place.
func (t *Tracker) Start(ctx context.Context, dl *TrackedDownload) error {
	dl.mu.Lock()
	if dl.State != StateIdle && dl.State != StateInProgress {
		st := dl.State
		dl.mu.Unlock()
		return fmt.Errorf("download %s is %s, cannot start", dl.ID, st)
	}
	ctx, cancel := context.WithCancel(ctx)
	dl.cancelFn = cancel
	dl.State = StateInProgress
	dl.mu.Unlock()
	if err := dl.rec.Write(dl.Snapshot()); err != nil {
		return err
	}
	downloadsStartedTotal.Inc()
	t.log.Info().Str("id", dl.ID.String()).Str("uri", dl.URI).Msg("download started")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx, dl)
	}()
	return nil
}

// run drives one transfer to a terminal state, including cleanup-on-failure
// of every file created during the attempt.
func (t *Tracker) run(ctx context.Context, dl *TrackedDownload) {
	tempPath := filepath.Join(dl.DestDir, dl.TempFileName)
	finalPath := filepath.Join(dl.DestDir, dl.FileName)

	// cleanup set: accumulated during the attempt, cleared only on success
	cleanup := []string{tempPath}

	resumeFrom := int64(0)
	if fi, err := os.Stat(tempPath); err == nil {
		resumeFrom = fi.Size()
	}

	err := t.transport.DownloadToFile(ctx, dl.URI, tempPath, resumeFrom, func(done, total int64) {
		dl.mu.Lock()
		if total > 0 {
			dl.Percent = float64(done) / float64(total) * 100
		}
		dl.mu.Unlock()
		if werr := dl.rec.Write(dl.Snapshot()); werr != nil {
			t.log.Warn().Err(werr).Str("id", dl.ID.String()).Msg("progress persist failed")
		}
	})
	if err != nil {
		state := StateFailed
		if ctx.Err() != nil {
			state = StateCancelled
		}
		t.removeFiles(cleanup)
		t.finalize(dl, state, err)
		return
	}

	if dl.SHA256 != "" {
		if err := verifySHA256(tempPath, dl.SHA256); err != nil {
			t.removeFiles(cleanup)
			t.finalize(dl, StateFailed, err)
			return
		}
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		t.removeFiles(cleanup)
		t.finalize(dl, StateFailed, fmt.Errorf("finalize download file: %w", err))
		return
	}

	// The continuation runs exactly once, synchronously, before the durable
	// record is deleted. A continuation failure does not fail the download.
	if cont := t.continuation(dl.ContinuationKind); cont != nil {
		if cerr := cont.OnSuccess(ctx, dl.Snapshot(), finalPath); cerr != nil {
			t.log.Warn().Err(cerr).Str("id", dl.ID.String()).Str("kind", dl.ContinuationKind).Msg("post-download action failed")
		}
	}
	t.finalize(dl, StateSuccess, nil)
}

func (t *Tracker) continuation(kind string) Continuation {
	if kind == "" {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.continuations[kind]
}

func (t *Tracker) removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			t.log.Warn().Err(err).Str("path", p).Msg("cleanup failed")
		}
	}
}

// finalize moves dl to a terminal state: the durable record is deleted and
// the download leaves the active set immediately.
func (t *Tracker) finalize(dl *TrackedDownload, state ProgressState, cause error) {
	dl.mu.Lock()
	dl.State = state
	if state == StateSuccess {
		dl.Percent = 100
	}
	dl.mu.Unlock()

	if err := dl.rec.Delete(); err != nil && !os.IsNotExist(err) {
		t.log.Warn().Err(err).Str("id", dl.ID.String()).Msg("record delete failed")
	}
	t.mu.Lock()
	delete(t.active, dl.ID)
	t.mu.Unlock()
	downloadsActive.Dec()
	downloadsFinishedTotal.WithLabelValues(string(state)).Inc()

	ev := t.log.Info()
	if state == StateFailed {
		ev = t.log.Warn()
	}
	ev.Str("id", dl.ID.String()).Str("state", string(state)).Err(cause).Msg("download finished")
}

// Cancel requests cooperative cancellation of an active download.
func (t *Tracker) Cancel(id uuid.UUID) error {
	t.mu.RLock()
	dl, ok := t.active[id]
	t.mu.RUnlock()
	if !ok {
		return ErrDownloadNotFound(id)
	}
	dl.mu.Lock()
	cancel := dl.cancelFn
	dl.mu.Unlock()
	if cancel == nil {
		// never started: treat as a straight discard
		t.finalize(dl, StateCancelled, nil)
		return nil
	}
	cancel()
	return nil
}

// Get returns the active download for id.
func (t *Tracker) Get(id uuid.UUID) (*TrackedDownload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dl, ok := t.active[id]
	return dl, ok
}

// Active returns snapshots of every tracked download.
func (t *Tracker) Active() []Snapshot {
	t.mu.RLock()
	dls := make([]*TrackedDownload, 0, len(t.active))
	for _, dl := range t.active {
		dls = append(dls, dl)
	}
	t.mu.RUnlock()
	out := make([]Snapshot, 0, len(dls))
	for _, dl := range dls {
		out = append(out, dl.Snapshot())
	}
	return out
}

// LoadPending scans the downloads directory for durable records left behind
// by a previous run and reloads them into the active set. Transfers are NOT
// auto-resumed: the caller decides to resume, retry, or discard each one.
func (t *Tracker) LoadPending() ([]*TrackedDownload, error) {
	dir, err := t.dirFn()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan downloads dir: %w", err)
	}
	var loaded []*TrackedDownload
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			t.log.Warn().Err(err).Str("path", path).Msg("unreadable download record")
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			t.log.Warn().Err(err).Str("path", path).Msg("corrupt download record")
			continue
		}
		rec, err := openRecord(path)
		if err != nil {
			continue
		}
		dl := &TrackedDownload{
			ID:               snap.ID,
			URI:              snap.URI,
			DestDir:          dir, // records may predate a library move
			FileName:         snap.FileName,
			TempFileName:     snap.TempFileName,
			SHA256:           snap.SHA256,
			ContinuationKind: snap.ContinuationKind,
			State:            snap.State,
			Percent:          snap.Percent,
			rec:              rec,
		}
		t.mu.Lock()
		t.active[dl.ID] = dl
		t.mu.Unlock()
		downloadsActive.Inc()
		loaded = append(loaded, dl)
		t.log.Info().Str("id", dl.ID.String()).Str("file", dl.FileName).Msg("reloaded in-flight download")
	}
	return loaded, nil
}

// Shutdown cancels every active transfer and waits for their goroutines,
// bounded by ctx. Timeouts are logged, never fatal.
func (t *Tracker) Shutdown(ctx context.Context) {
	t.mu.RLock()
	for _, dl := range t.active {
		dl.mu.Lock()
		if dl.cancelFn != nil {
			dl.cancelFn()
		}
		dl.mu.Unlock()
	}
	t.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.log.Warn().Msg("download disposal timed out")
	}
}

func verifySHA256(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("sha256 mismatch: got %s want %s", got, want)
	}
	return nil
}
