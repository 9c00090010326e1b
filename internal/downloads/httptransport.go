package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPTransport implements Transport over plain HTTP(S) with Range-based
// resume when the server supports it.
type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	// Timeout stays 0: large model downloads run for hours; cancellation is
	// context-based.
	return &HTTPTransport{Client: &http.Client{Timeout: 0}}
}

const progressChunk = 64 * 1024

func (t *HTTPTransport) DownloadToFile(ctx context.Context, uri, destPath string, resumeFrom int64, onProgress func(done, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	offset := int64(0)
	switch {
	case resumeFrom > 0 && resp.StatusCode == http.StatusPartialContent:
		flags |= os.O_APPEND
		offset = resumeFrom
	case resp.StatusCode == http.StatusOK:
		flags |= os.O_TRUNC // server ignored the range; start over
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("download %s: %s: %s", uri, resp.Status, string(b))
	}

	total := offset
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	f, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	done := offset
	buf := make([]byte, progressChunk)
	lastReport := time.Time{}
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			done += int64(n)
			// throttle progress callbacks; always report the final tick
			if onProgress != nil && (time.Since(lastReport) > 100*time.Millisecond || done == total) {
				onProgress(done, total)
				lastReport = time.Now()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return rerr
		}
	}
	if onProgress != nil {
		// a chunked response carries no Content-Length; the total is only
		// known once the body ends
		if total < done {
			total = done
		}
		onProgress(done, total)
	}
	return nil
}
