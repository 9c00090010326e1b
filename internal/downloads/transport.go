package downloads

import "context"

// Transport fetches a URI into a local file. Implementations report progress
// via callback and honor context cancellation; their internal concurrency is
// opaque to the tracker.
type Transport interface {
	// DownloadToFile writes uri's content to destPath. A non-zero
	// resumeFrom appends to an existing partial file starting at that
	// offset. onProgress receives bytes done and total (total may be 0
	// when unknown).
	DownloadToFile(ctx context.Context, uri, destPath string, resumeFrom int64, onProgress func(done, total int64)) error
}
