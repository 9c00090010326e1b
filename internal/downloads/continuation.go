package downloads

import (
	"context"
	"encoding/json"
	"os"
	"time"
)

// Continuation is an action invoked exactly once, synchronously, after a
// download succeeds and before its durable record is deleted. The tracker
// does not retry a failed continuation; the download itself still counts
// as complete.
type Continuation interface {
	Kind() string
	OnSuccess(ctx context.Context, dl Snapshot, finalPath string) error
}

// ConnectedModelWriter writes a metadata sidecar next to a downloaded model
// file so installed packages can associate the file with its source.
type ConnectedModelWriter struct{}

// ConnectedModelKind names the continuation in durable records.
const ConnectedModelKind = "connected-model"

func (ConnectedModelWriter) Kind() string { return ConnectedModelKind }

type connectedModelMeta struct {
	SourceURI    string    `json:"source_uri"`
	SHA256       string    `json:"sha256,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

func (ConnectedModelWriter) OnSuccess(ctx context.Context, dl Snapshot, finalPath string) error {
	meta := connectedModelMeta{
		SourceURI:    dl.URI,
		SHA256:       dl.SHA256,
		DownloadedAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(finalPath+".cm.json", b, 0o644)
}
