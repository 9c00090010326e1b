package downloads

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHTTPTransportFullFetch(t *testing.T) {
	body := strings.Repeat("abc123", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	tr := NewHTTPTransport()
	var lastDone, lastTotal int64
	err := tr.DownloadToFile(context.Background(), srv.URL, dest, 0, func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != body {
		t.Fatalf("content mismatch: %v len=%d", err, len(got))
	}
	if lastDone != int64(len(body)) || lastTotal != int64(len(body)) {
		t.Fatalf("final progress = %d/%d, want %d/%d", lastDone, lastTotal, len(body), len(body))
	}
}

func TestHTTPTransportUnknownLengthReportsFinalTotal(t *testing.T) {
	body := strings.Repeat("chunky", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length: the body goes out chunked and the transport
		// only learns the total at EOF
		_, _ = w.Write([]byte(body))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	tr := NewHTTPTransport()
	var lastDone, lastTotal int64
	err := tr.DownloadToFile(context.Background(), srv.URL, dest, 0, func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}
	if lastDone != int64(len(body)) || lastTotal != int64(len(body)) {
		t.Fatalf("final progress = %d/%d, want %d/%d", lastDone, lastTotal, len(body), len(body))
	}
}

func TestHTTPTransportResumesWithRange(t *testing.T) {
	body := "0123456789abcdef"
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if gotRange == "" {
			t.Error("expected a Range header")
			http.Error(w, "no range", http.StatusBadRequest)
			return
		}
		var from int
		_, _ = fmt.Sscanf(gotRange, "bytes=%d-", &from)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, len(body)-1, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(body[from:]))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte(body[:6]), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewHTTPTransport()
	if err := tr.DownloadToFile(context.Background(), srv.URL, dest, 6, nil); err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}
	if gotRange != "bytes=6-" {
		t.Fatalf("Range = %q, want bytes=6-", gotRange)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != body {
		t.Fatalf("resumed content = %q, want %q", got, body)
	}
}

func TestHTTPTransportRestartsWhenRangeIgnored(t *testing.T) {
	body := "full-body-again"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a 200 despite the Range header means start over
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(dest, []byte("stale-partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewHTTPTransport()
	if err := tr.DownloadToFile(context.Background(), srv.URL, dest, 5, nil); err != nil {
		t.Fatalf("DownloadToFile: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != body {
		t.Fatalf("content = %q, want restarted body", got)
	}
}

func TestHTTPTransportServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	tr := NewHTTPTransport()
	err := tr.DownloadToFile(context.Background(), srv.URL, dest, 0, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestHTTPTransportContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("start"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	dest := filepath.Join(t.TempDir(), "out.bin")
	tr := NewHTTPTransport()

	done := make(chan error, 1)
	go func() {
		done <- tr.DownloadToFile(ctx, srv.URL, dest, 0, nil)
	}()
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
